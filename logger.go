package main

import (
	"io"
	"log/slog"
)

// NewLogger returns a structured JSON slog.Logger writing to w. Debug
// lowers the level to include per-event detail.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
