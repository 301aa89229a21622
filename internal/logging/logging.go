// Package logging centralizes the runtime's zerolog setup so every
// component logs through the same console-writer configuration
// instead of constructing its own logger inline.
package logging

import (
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

// New builds the runtime's base logger, tagged with the running
// component name (e.g. "scheduler", "engine", "fieldbus").
func New(component string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("component", component).Logger()
}

// SetGlobalLevel adjusts the package-wide minimum log level; levelName
// follows zerolog's own names (debug, info, warn, error, ...). An
// unrecognized name is treated as info.
func SetGlobalLevel(levelName string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
