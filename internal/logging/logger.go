// Package logging builds the structured logger used throughout syncd.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures NewLogger beyond the environment name.
type Options struct {
	// LogFile, if non-empty, routes log output through a rotating
	// file writer instead of stdout.
	LogFile string
}

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
func NewLogger(env string, opts Options) *slog.Logger {
	var handler slog.Handler

	out := logWriter(opts)

	handlerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handlerOpts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// logWriter returns the rotating file writer when a log file is
// configured, falling back to stdout otherwise.
func logWriter(opts Options) io.Writer {
	if opts.LogFile == "" {
		return os.Stdout
	}

	return &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}
