// Package logging provides structured logging for tabular-index using
// zerolog.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	pretty bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger. debug lowers the level to Debug; human
// switches to a console writer and enables human-readable companion fields
// on completion events.
func Init(debug, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}
	pretty = human

	l := zerolog.New(output).Level(level).With().Timestamp().Logger()
	logger = &l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger tagged with a pipeline phase.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// IsPrettyMode reports whether human-readable companion fields should be
// emitted alongside raw values.
func IsPrettyMode() bool {
	return pretty
}

// SetLogger overrides the global logger (useful for tests).
func SetLogger(l zerolog.Logger) {
	logger = &l
}
