// Package logging provides structured logging utilities.
//
// Console logs are formatted in Maven-style with colors:
// [LEVEL] [SCOPE] [HH:MM:SS] message key=value
package logging

import (
	"log/slog"
	"os"

	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/config"
)

// NewLogger creates a structured logger based on config. Format "json"
// produces machine-readable output; anything else gets the console handler.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	return slog.New(NewConsoleHandler(os.Stdout, opts))
}

// NewLoggerWithScope creates a logger with a scope prefix (e.g., "pipeline",
// "api", "apply"). Useful for creating scoped loggers injected into
// subsystems.
func NewLoggerWithScope(cfg config.LoggingConfig, scope string) *slog.Logger {
	logger := NewLogger(cfg)
	return logger.With("scope", scope)
}
