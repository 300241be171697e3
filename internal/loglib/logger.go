// Package loglib is a minimal io.Writer-backed logger, adapted from
// golang-dep's log/logger.go. The teacher carries no structured/leveled
// logging library of its own, so none is introduced here either; this
// generalizes the same shape (Logln/Logf) with a Debugf gated by a
// verbose flag, matching how the rest of the pack gates noisy output.
package loglib

import (
	"fmt"
	"io"
)

// Logger is a minimal wrapper around an io.Writer.
type Logger struct {
	io.Writer
	Verbose bool
}

// New returns a new logger which writes to w.
func New(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted string.
func (l *Logger) Logf(f string, args ...interface{}) {
	fmt.Fprintf(l, f, args...)
}

// Debugf logs a formatted string only when Verbose is set, used for
// deferral traces, cache hit/miss notes, and scheduler progress.
func (l *Logger) Debugf(f string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	fmt.Fprintf(l, "debug: "+f+"\n", args...)
}

// LogLoaderfln logs a formatted line, prefixed with `loader: `.
func (l *Logger) LogLoaderfln(format string, args ...interface{}) {
	fmt.Fprintf(l, "loader: "+format+"\n", args...)
}
