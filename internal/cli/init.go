// Package cli provides common CLI initialization utilities shared by
// cmd/kidcash and cmd/kidcash-worker.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kidcash/internal/config"
	klog "kidcash/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default. The closer flushes the rotated log file, if any.
func SetupLogger(cfg *config.Config, component string) (*klog.Logger, io.Closer) {
	lc := klog.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.Format = cfg.LogFormat
	lc.File = cfg.LogFile
	lc.Component = component

	logger, closer, err := klog.New(lc, os.Stdout)
	if err != nil {
		// Validate already rejected bad levels; fall back rather than exit.
		slog.Error("Failed to configure logger, using defaults", "error", err)
		lc = klog.DefaultConfig()
		lc.Component = component
		logger, closer, _ = klog.New(lc, os.Stdout)
	}
	klog.SetDefault(logger)
	return logger, closer
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *klog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
