// Package logging constructs the process-wide zerolog logger. Components
// receive a child logger tagged with their component name; there is no
// ambient global instance.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a timestamped JSON logger writing to stdout at the given
// level. Unknown level strings fall back to info.
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger().
		Level(lvl)
}
