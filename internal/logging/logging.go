// Package logging sets up the process-wide zerolog logger: a colorized
// console writer when attached to a terminal, plain text otherwise, with
// every line carrying the process pid. Shape (one shared logger behind
// sync.Once, an Init that only takes effect on its first call, a Logger
// accessor that lazily builds a default) is sumerc-zee/log.go's, adapted
// from a file-backed diagnostics log to a stderr console writer, since
// this core has no GUI log viewer to feed.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

func build(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if tty {
		out = colorable.NewColorableStderr()
	}
	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000", NoColor: !tty}
	return zerolog.New(writer).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

// Init builds the process-wide logger at the given level ("debug",
// "info", "warn", "error"; unrecognized values fall back to "info").
// Safe to call more than once; only the first call takes effect.
func Init(level string) zerolog.Logger {
	once.Do(func() {
		logger = build(level)
	})
	return logger
}

// Logger returns the process-wide logger, initializing it at info level
// if Init has not yet been called.
func Logger() zerolog.Logger {
	once.Do(func() {
		logger = build("info")
	})
	return logger
}
