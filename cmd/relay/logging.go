package main

import (
	"io"
	"log/slog"

	"github.com/electr1fy0/relay/internal/config"
)

// newLogger builds the process logger. cfg has already been validated.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
