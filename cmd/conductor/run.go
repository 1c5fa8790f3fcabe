package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <input>",
	Short: "Dispatch one input and wait for its pipeline",
	Long: `Runs the pipeline bound to an input once, as if the input had risen on the
board, and prints the outcome. Sessions are read from and written to the
configured store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("input must be a number: %w", err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Dispatch.Workers = 0
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		c, err := conductor.New(cmd.Context(), cfg, conductor.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to initialize conductor: %w", err)
		}
		defer c.Close()

		run, err := c.Dispatcher.Dispatch(cmd.Context(), n)
		if run != nil {
			tui.NewTable(tui.IsTerminal(os.Stdout)).Run(cmd.OutOrStdout(), run)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
