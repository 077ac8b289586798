// Package slogx wires log/slog for the SDK: handler construction from
// config, a contextual logger carried in context.Context, and an HTTP
// middleware that tags requests with correlation IDs.
package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	App     string // app name attached to every record
	Env     string // e.g. "dev", "prod"
	Level   string // "debug", "info", "warn", "error"
	Format  string // "json" or "text"
	Output  io.Writer
	Default bool // also install as slog.Default
}

// New returns a configured *slog.Logger.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.App != "" {
		logger = logger.With("app", cfg.App)
	}
	if cfg.Env != "" {
		logger = logger.With("env", cfg.Env)
	}

	if cfg.Default {
		slog.SetDefault(logger)
	}

	return logger
}

// ParseLevel maps a level string to slog.Level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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
