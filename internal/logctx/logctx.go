// Package logctx carries a zerolog logger through context.Context.
//
// The pipeline phases enrich a logger with their own fields (phase, worker
// index) via zerolog's With() and hand it down through the context, so
// worker goroutines log with their identity attached without threading a
// logger parameter through every call.
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// loggerKey is private to prevent collisions with other packages.
type loggerKey struct{}

var defaultLogger = sync.OnceValue(func() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
})

// DefaultLogger returns the process-wide fallback logger: JSON to stderr
// with timestamps.
func DefaultLogger() zerolog.Logger {
	return defaultLogger()
}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from ctx, falling back to the default
// logger. Never panics and never returns a zero-value logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}
