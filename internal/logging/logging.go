// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level ("debug", "info",
// "warn", "error") and format ("json" or "pretty").
func New(level, format string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(parseLevel(level))

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "chattcp").
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
