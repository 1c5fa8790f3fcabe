package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the line and the HTTP operations API",
	Long: `Watches the I/O board, dispatches every input activation to its pipeline and
serves the operations API (sessions, inputs, runs, metrics) over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Listen, _ = cmd.Flags().GetString("listen")
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := conductor.New(ctx, cfg, conductor.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to initialize conductor: %w", err)
		}
		defer func() {
			if err := c.Close(); err != nil {
				logger.Error("Shutdown incomplete", "err", err)
			}
		}()

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(cmd.OutOrStdout(), conductor.Version)
		}

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           c.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("HTTP API listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		lineErrors := make(chan error, 1)
		go func() {
			lineErrors <- c.Run(ctx)
		}()

		var runErr error
		select {
		case err := <-serverErrors:
			runErr = fmt.Errorf("server error: %w", err)
			stop()
		case err := <-lineErrors:
			if err != nil {
				runErr = fmt.Errorf("input monitor stopped: %w", err)
			}
			stop()
		case <-ctx.Done():
			logger.Info("Shutdown started")
		}

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			_ = srv.Close()
		}
		logger.Info("Conductor stopped")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", ":8080", "HTTP API address")
}
