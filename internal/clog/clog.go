// Package clog provides global conditional logging for application
// components. It is silent by default so a normal coordinator run produces
// no chatter; Enable turns on detailed output for debugging.
package clog

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var enabled atomic.Bool

// Enable turns on conditional log output for every CLogger in the process.
func Enable() {
	enabled.Store(true)
}

// Enabled reports whether conditional logging is currently turned on.
func Enabled() bool {
	return enabled.Load()
}

// A CLogger logs structured output tagged with a component role and id. Printf
// is a no-op unless Enable has been called; Errorf always logs.
type CLogger struct {
	logger zerolog.Logger
}

// New creates a conditional logger. role and id are attached to every line as
// "component" and "id" fields.
func New(role string, id string) *CLogger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).
		With().
		Timestamp().
		Str("component", role).
		Str("id", id).
		Logger()
	return &CLogger{logger: l}
}

// Printf logs a message conditionally (if Enable has been called) in the
// manner of fmt.Printf.
func (c *CLogger) Printf(format string, a ...any) {
	if !Enabled() {
		return
	}
	c.logger.Info().Msgf(format, a...)
}

// Errorf logs a message unconditionally, i.e. always.
func (c *CLogger) Errorf(format string, a ...any) {
	c.logger.Error().Msgf(format, a...)
}
