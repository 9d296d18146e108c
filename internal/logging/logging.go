package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects the log sink and verbosity.
type Options struct {
	Out     io.Writer
	JSON    bool
	NoColor bool
	Level   string
}

// New builds the process logger and installs it as the zerolog global.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if opts.JSON {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	level, ok := ParseLevel(opts.Level)
	logger = logger.Level(level)
	if !ok {
		logger.Warn().Str("logLevelSpecified", opts.Level).Msg("Invalid log level, defaulting to info")
	}

	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to zerolog. Blank means info; unknown names
// return info and false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "", "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}
