// Package logger provides structured logging functionality for the application.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a configuration log level string (case-insensitive)
// to a slog.Level. Unknown values fall back to info and emit a warning
// through a temporary text logger, so a typo in configuration never
// silences logging entirely.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", logLevel,
			"default_level", "info")
		return slog.LevelInfo
	}
}

// Setup initializes and configures the application's logging system. It
// creates a structured JSON logger writing to stdout at the given level
// and sets it as the default logger for the application.
//
// It returns the configured logger and any error encountered during setup.
func Setup(logLevel string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	// Set this logger as the default for the application. This allows
	// using the slog package functions directly (slog.Info, slog.Error, etc.)
	slog.SetDefault(logger)

	return logger, nil
}
