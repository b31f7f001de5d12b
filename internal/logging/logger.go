package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger. Output goes to stderr so it never mixes
// with chat output on stdout. Development gets the text handler.
func New(service, environment string) *slog.Logger {
	return newLogger(os.Stderr, service, environment, os.Getenv("LOG_LEVEL"))
}

func newLogger(w io.Writer, service, environment, levelName string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(levelName)}

	var handler slog.Handler
	if environment == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		opts.AddSource = true
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("env", environment),
	)
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
