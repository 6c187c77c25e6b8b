package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/couponrelay"
	"github.com/jpalmerr/couponrelay/config"
	"github.com/jpalmerr/couponrelay/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates the CLI logger from the log section of the config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// serveCmd starts the relay server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the couponrelay server.

The server will:
  - Load configuration from the specified YAML file
  - Accept results and client streams on the configured port
  - Sweep stale results and connections on the configured interval

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  couponrelay serve -c config.yaml
  couponrelay serve --config /etc/couponrelay/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(os.Stderr, cfg.Log)
	logger.Info("config loaded",
		"port", cfg.Port,
		"sweep_interval", cfg.Sweep.Interval.Duration().String(),
		"eviction_age", cfg.Sweep.EvictionAge.Duration().String(),
		"webhook", cfg.Webhook.URL != "",
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Stdout:         cfg.Tracing.Stdout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	opts := append(config.BuildOptions(cfg), couponrelay.WithLogger(logger))
	relay, err := couponrelay.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- relay.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
