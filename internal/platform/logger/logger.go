package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog. Dev-like environments log
// at debug level.
func New(environment string) *slog.Logger {
	return NewWithWriter(os.Stdout, environment)
}

func NewWithWriter(w io.Writer, environment string) *slog.Logger {
	level := slog.LevelInfo
	switch environment {
	case "local", "dev", "development":
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "gatekeeper")
}
