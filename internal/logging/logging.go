// Package logging builds the process zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to zerolog, defaulting to info. "off"
// disables logging.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled", "none":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New returns a logger writing to w. Format "console" is human readable,
// "json" is newline delimited JSON and "auto" picks console on a terminal.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := w
	switch strings.ToLower(format) {
	case "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !IsTerminal(w)}
	case "json":
	default:
		if IsTerminal(w) {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		}
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}
