// Package logging sets up the console logger
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// TimeFormat is used for console timestamps
const TimeFormat = "15:04:05"

// New returns a logger writing to w. Console output is human readable
// unless json is set.
func New(w io.Writer, level string, json bool) zerolog.Logger {
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: TimeFormat}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
