package app

import (
	"io"
	"log/slog"
)

// newLogger builds the App's isolated logger from the parsed configuration.
// It never touches the global default, so embedding callers keep their own
// logging intact. Debug level also records source positions, which pays off
// when tracing how a matrix document expanded but is too noisy otherwise.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	} else {
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler)
}
