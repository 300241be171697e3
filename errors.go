package loader

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// errorLevel classifies how a diagnostic should be handled by the top-level
// loader: whether it's merely informative, fails the product it occurred in,
// or aborts the whole load.
type errorLevel uint8

const (
	levelWarning errorLevel = 1 << iota
	levelProductFatal
	levelLoadFatal
)

// traceError is implemented by errors that can render a longer, indented
// trace in addition to their short Error() message. The scheduler and
// Dependencies Resolver use this to produce readable cycle/defer traces
// without bloating the common-case error string.
type traceError interface {
	error
	traceString() string
}

// locatable is implemented by anything carrying a source location, so
// diagnostics can point at the offending Item/Value without every error
// type needing bespoke formatting.
type locatable interface {
	Location() Location
}

// Location identifies a point in a parsed project file. It is supplied by
// the external ItemReader/Evaluator capabilities; the core never
// constructs one from scratch, only carries it along.
type Location struct {
	FilePath string
	Line     int
	Column   int
}

func (l Location) String() string {
	if l.FilePath == "" {
		return "<unknown location>"
	}
	if l.Line == 0 {
		return l.FilePath
	}
	return fmt.Sprintf("%s:%d:%d", l.FilePath, l.Line, l.Column)
}

// missingDependencyError is raised when a required Depends item cannot be
// satisfied by any module/product on the search paths.
type missingDependencyError struct {
	requester  string
	name       string
	loc        Location
	filterInfo string // non-empty if profile/multiplex narrowed the search
}

func (e *missingDependencyError) Error() string {
	msg := fmt.Sprintf("Dependency %q required by %q could not be found", e.name, e.requester)
	if e.filterInfo != "" {
		msg += " (" + e.filterInfo + ")"
	}
	return msg
}

func (e *missingDependencyError) Location() Location { return e.loc }

// multiplexResolutionError is raised when the Depends multiplex-adjustment
// decision table (spec §4.I) finds zero or more-than-one eligible candidate
// where exactly one is required.
type multiplexResolutionError struct {
	name       string
	candidates []string
	zero       bool
}

func (e *multiplexResolutionError) Error() string {
	if e.zero {
		return fmt.Sprintf("no multiplexed variant of %q matches the depending product", e.name)
	}
	return fmt.Sprintf("ambiguous dependency on %q: candidates are %v", e.name, e.candidates)
}

// cycleError is raised when the Dependencies Resolver discovers the item
// currently being loaded reappears as a loading item earlier in the stack,
// and the cycle could not be pruned as a non-required branch.
type cycleError struct {
	chain []string // qualified names/ids, root-to-tip
}

func (e *cycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", joinChain(e.chain))
}

func (e *cycleError) traceString() string {
	var buf bytes.Buffer
	buf.WriteString("cycle detected while resolving dependencies:\n")
	for i, n := range e.chain {
		fmt.Fprintf(&buf, "  %d: %s\n", i, n)
	}
	return buf.String()
}

func joinChain(chain []string) string {
	var buf bytes.Buffer
	for i, n := range chain {
		if i > 0 {
			buf.WriteString(" -> ")
		}
		buf.WriteString(n)
	}
	return buf.String()
}

// overrideError is raised when a user-supplied override string (spec §6)
// does not address any known project/product/module path.
type overrideError struct {
	key string
}

func (e *overrideError) Error() string {
	return fmt.Sprintf("override key %q does not match any known project, product, or module", e.key)
}

// internalError marks a bug in the loader itself, as distinct from a
// problem with the user's project. Only the first one per product is
// surfaced; see ProductContext.recordError.
type internalError struct {
	msg string
}

func (e *internalError) Error() string { return "internal error: " + e.msg }

// readOnlyPropertyError is raised by the Property Merger when something
// attempts to contribute a value to a property declared read-only.
type readOnlyPropertyError struct {
	module   string
	property string
	loc      Location
}

func (e *readOnlyPropertyError) Error() string {
	return fmt.Sprintf("%s: cannot set read-only property %s.%s", e.loc, e.module, e.property)
}

func (e *readOnlyPropertyError) Location() Location { return e.loc }

// disabledDependencyError is surfaced when a product depends, non-optionally,
// on a product that ended up disabled due to its own fatal error.
type disabledDependencyError struct {
	requester string
	dependsOn string
}

func (e *disabledDependencyError) Error() string {
	return fmt.Sprintf("product %q depends on disabled product %q", e.requester, e.dependsOn)
}

// cancelError is a distinguished type the scheduler uses to unwind a load
// cleanly when cancellation is observed; it must never be treated as a
// regular error (spec §7).
type cancelError struct{}

func (cancelError) Error() string { return "load cancelled" }

// IsCancelError reports whether err is (or wraps) a cancellation, so
// callers can special-case it rather than reporting it as a failure.
func IsCancelError(err error) bool {
	_, ok := errors.Cause(err).(cancelError)
	return ok
}
