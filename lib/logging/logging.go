// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
)

// NewLogger creates a JSON logger writing to stderr at the given
// level ("debug", "info", "warn", or "error"; anything else falls
// back to info) and installs it as the slog default.
func NewLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
