// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging builds the daemon's [*slog.Logger] from configuration.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New constructs a logger writing to w. Level is one of "debug",
// "info", "warn", "error" (unknown values mean info); format is
// "json" or "text" (the default).
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
