package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the document and question-answering API under /api/v1.

Requests identify the caller with the X-User-ID header. /health reports
component status and /metrics exposes Prometheus metrics.

Examples:
  # Serve with ~/.config/ragd/config.yaml
  ragd serve

  # Override the port
  RAGD_SERVER_PORT=9090 ragd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

// runServe serves HTTP until ctx is canceled, then shuts down gracefully.
func runServe(ctx context.Context, flags *globalFlags) error {
	if flags.configPath == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, flags, false)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	srv, err := ragdhttp.NewServer(a.registry, a.logger, a.cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	watchConfig(ctx, a)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "received shutdown signal",
		zap.Duration("shutdown_timeout", a.cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// watchConfig applies log level changes from the config file without a
// restart. Other settings need a restart and are only reported.
func watchConfig(ctx context.Context, a *app) {
	w, err := config.NewWatcher(a.configPath,
		func(cfg *config.Config) {
			level, err := logging.LevelFromString(cfg.Logging.Level)
			if err != nil {
				a.logger.Warn(ctx, "ignoring invalid log level", zap.String("level", cfg.Logging.Level))
				return
			}
			if level != a.logger.Level() {
				a.logger.SetLevel(level)
				a.logger.Info(ctx, "log level changed", zap.String("level", level.String()))
			}
		},
		func(err error) {
			a.logger.Warn(ctx, "config reload failed", zap.Error(err))
		},
	)
	if err != nil {
		a.logger.Warn(ctx, "config hot reload disabled", zap.Error(err))
		return
	}
	a.onClose(func(context.Context) error { return w.Close() })
	go w.Run(ctx)
}
