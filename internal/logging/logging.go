// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// Setup installs the default logger writing to stderr.
func Setup(level string, debug bool) {
	SetupWriter(os.Stderr, level, debug)
}

// SetupWriter installs the default logger writing to w.
func SetupWriter(w io.Writer, level string, debug bool) {
	lvl := log.ParseLevel(level)
	if debug {
		lvl = log.DebugLevel
	}

	color := false
	if f, ok := w.(*os.File); ok {
		color = log.IsTerminal(f.Fd())
	}

	log.DefaultLogger = log.Logger{
		Level:      lvl,
		Caller:     callerDepth(debug),
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: color,
			QuoteString: true,
		},
	}
}

func callerDepth(debug bool) int {
	if debug {
		return 1
	}
	return 0
}
