package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor runs the input-driven print and scan line",
	Long: `Conductor maps the inputs of an I/O board to pipelines that talk to the
line printer and scanner, tracks the lot in production and signals the
operator through the board outputs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig reads the configuration named by --config and applies the
// logging flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat, _ = cmd.Flags().GetString("log-format")
	}
	return cfg, nil
}

// newLogger builds the stderr logger described by cfg. Stdout stays free for
// command output and the MCP stdio transport.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := config.ParseLogFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(os.Stderr, level, format), nil
}
