package main

import (
	"fmt"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	Long: `Loads the configuration and builds every pipeline from it, reporting unknown
stage classes, bad parameters and inputs bound to missing pipelines. The board
and the session store are simulated, so no device is touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg.Dispatch.DistributedLock = false

		c, err := conductor.New(cmd.Context(), cfg,
			conductor.WithBoard(memory.NewBoard()),
			conductor.WithStore(memory.NewStore()),
		)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		defer c.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %d pipelines, %d inputs\n", len(c.Pipelines), len(cfg.Inputs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
