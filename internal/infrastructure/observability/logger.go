package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the root structured logger every component derives from.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	return zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
