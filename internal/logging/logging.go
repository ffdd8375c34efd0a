// ABOUTME: slog setup: tint handler for development, JSON for production.

package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Configure installs the process-wide default logger and returns it.
func Configure(levelStr, env string) *slog.Logger {
	level := parseLevel(levelStr)

	var handler slog.Handler
	if env == "dev" || env == "development" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
