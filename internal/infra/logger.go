package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Development gets debug level and the
// console writer; other environments write JSON at info. A valid level name
// overrides either default.
func NewLogger(appEnv, level string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, level)
}

func newLogger(out io.Writer, appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil && parsed != zerolog.NoLevel {
			lvl = parsed
		}
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "frameart").
		Logger()
}

// Logger is the logging contract packages accept in their options.
type Logger = zerolog.Logger
