package loader

import "context"

// EvalContext distinguishes the semantic context a Source expression is
// evaluated under, so the external Evaluator can enable/disable language
// features that only make sense in one of them (spec §6
// "EvalContextSwitcher").
type EvalContext uint8

const (
	EvalContextNormal EvalContext = iota
	EvalContextProbe
	EvalContextModuleProvider
)

// ScriptValue is an opaque handle to a compiled/evaluated script body
// (e.g. a Probe's `configure` block), returned by Evaluator.Script and
// passed back in to RunScript. The core never inspects it.
type ScriptValue interface{}

// Evaluator is the external capability (spec §1, §6) that evaluates a
// named property of an Item to a typed value under a scope, with caching.
// The core depends only on this interface; no expression language is
// assumed.
type Evaluator interface {
	// String/StringList/Bool/Int evaluate prop on item, returning the
	// value and whether it was explicitly set (as opposed to falling back
	// to a built-in/declared default).
	String(ctx context.Context, item *Item, prop string, dflt string) (value string, wasSet bool, err error)
	StringList(ctx context.Context, item *Item, prop string, dflt []string) (value []string, wasSet bool, err error)
	Bool(ctx context.Context, item *Item, prop string, dflt bool) (value bool, wasSet bool, err error)
	Int(ctx context.Context, item *Item, prop string, dflt int) (value int, wasSet bool, err error)

	// FileTags evaluates a file-tag-set-valued property.
	FileTags(ctx context.Context, item *Item, prop string, dflt []string) (value map[string]struct{}, wasSet bool, err error)

	// Script compiles (or returns a cached compilation of) item's script
	// body (e.g. a Probe's `configure`) into an opaque ScriptValue.
	Script(ctx context.Context, item *Item) (ScriptValue, error)

	// RunScript executes a previously compiled script with the given
	// mutable variable bindings, returning the bindings' final values.
	RunScript(ctx context.Context, sv ScriptValue, bindings map[string]interface{}) (map[string]interface{}, error)

	// ClearItemCache discards any cached evaluation results for item,
	// used by the Property Merger's final-merge pass when a property that
	// fed a cached evaluation changes (spec §4.H).
	ClearItemCache(item *Item)

	// EnableCache returns a handle that, while held, permits the
	// Evaluator to memoize (item, property) lookups; releasing it (via
	// the returned func) restores the prior caching state. Mirrors the
	// source system's "scoped EvalCacheEnabler" (spec §6).
	EnableCache() (release func())

	// WithContext returns an Evaluator scoped to the given semantic
	// context (spec's EvalContextSwitcher), for the duration of probe or
	// module-provider evaluation.
	WithContext(ctx EvalContext) Evaluator
}
