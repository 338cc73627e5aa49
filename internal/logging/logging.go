// Package logging wires the process-wide zerolog logger and bridges it
// to the go-logr/logr interface used by the rest of the core, following
// the same zerolog->zerologr bridging the teacher wires through
// ctrl.SetLogger, minus the controller-runtime dependency.
package logging

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

var base zerolog.Logger

// Init configures the global zerolog logger at the given level
// ("debug", "info", "warn", "error") and returns both the zerolog.Logger
// (for components that log structured fields directly, e.g. the chi
// request middleware) and its logr.Logger bridge (for components
// written against the logr interface, matching the rest of the pack).
func Init(level string) (zerolog.Logger, logr.Logger) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	return base, zerologr.New(&base)
}

// Base returns the process-wide zerolog.Logger configured by Init. Called
// before Init it returns the zero-value zerolog.Logger rather than
// panicking.
func Base() *zerolog.Logger {
	return &base
}
