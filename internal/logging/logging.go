package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup initializes a JSON slog logger with the given service name and
// level and sets it as the default logger.
func Setup(serviceName, level string) *slog.Logger {
	logger := New(os.Stdout, serviceName, level)
	slog.SetDefault(logger)
	return logger
}

// New builds the JSON logger without touching the default.
func New(w io.Writer, serviceName, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With(
		slog.String("service", serviceName),
	)
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
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
