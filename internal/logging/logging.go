package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New builds a logger for format "text", "json" or "pretty" (colourised,
// for local runs).
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	case "pretty":
		h = tint.NewHandler(w, &tint.Options{Level: lvl, AddSource: true, TimeFormat: time.Kitchen})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(h).With("service", "readings-service")
}

// Setup installs the logger as the slog default.
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}
