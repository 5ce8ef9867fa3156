package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// Init installs the process-wide logger. The server logs at info by default,
// the interactive client only shows errors so the TUI stays clean.
func Init(def slog.Level) {
	InitWriter(os.Stderr, def)
}

func InitWriter(w io.Writer, def slog.Level) {
	level := def
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l, def)
	}

	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
