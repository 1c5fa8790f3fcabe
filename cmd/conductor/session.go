package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
	Long:  `List, inspect, finish and remove the session records of the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(r *session.Registry) error {
			sessions, err := r.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}
			return tui.NewTable(tui.IsTerminal(os.Stdout)).Sessions(cmd.OutOrStdout(), sessions)
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <lot>",
	Short: "Print the record of a lot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(r *session.Registry) error {
			s, err := r.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", args[0], err)
			}
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <lot>",
	Short: "Print the state transitions of a lot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(r *session.Registry) error {
			rows, err := r.History(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read history of %q: %w", args[0], err)
			}
			return tui.NewTable(tui.IsTerminal(os.Stdout)).History(cmd.OutOrStdout(), rows)
		})
	},
}

var sessionFinishCmd = &cobra.Command{
	Use:   "finish <lot>...",
	Short: "Mark one or more lots as finished",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(r *session.Registry) error {
			for _, lot := range args {
				if err := r.FinishSession(cmd.Context(), lot); err != nil {
					return fmt.Errorf("failed to finish %q: %w", lot, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Finished session '%s'\n", lot)
			}
			return nil
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <lot>...",
	Short: "Remove the record and history of one or more lots",
	Long:  `Removes lots that are not running. Finish a running lot before removing it.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(r *session.Registry) error {
			var failed bool
			for _, lot := range args {
				if err := r.Purge(cmd.Context(), lot); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", lot, err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", lot)
			}
			if failed {
				return fmt.Errorf("some sessions were not removed")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(sessionFinishCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

// withRegistry opens the configured store, restores the running lots so
// they are protected from removal, and hands the registry to fn.
func withRegistry(cmd *cobra.Command, fn func(r *session.Registry) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := conductor.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	r := session.NewRegistry(store, session.WithLogger(logger))
	if _, err := r.Restore(cmd.Context()); err != nil {
		return err
	}
	return fn(r)
}
