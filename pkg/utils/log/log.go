package log

import (
	"io"

	"github.com/rs/zerolog"
)

var (
	// Verbosity is bumped by each -v.
	Verbosity int
	// Quiet drops everything below warnings. It wins over Verbosity.
	Quiet bool
)

func getLevel(verbosity int, quiet bool) zerolog.Level {
	switch {
	case quiet:
		return zerolog.WarnLevel
	case verbosity <= 0:
		return zerolog.InfoLevel
	case verbosity == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// GetLogger returns a logger writing to out. Human readable console output
// is used for terminals, JSON lines otherwise.
func GetLogger(out io.Writer, isTerminal bool) zerolog.Logger {
	l := zerolog.New(out).With().Timestamp().Logger().Level(getLevel(Verbosity, Quiet))

	if isTerminal {
		l = l.Output(zerolog.ConsoleWriter{Out: out})
	}

	return l
}
