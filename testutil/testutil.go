// Package testutil provides fixture Evaluator, ItemReader and Profiles
// doubles for exercising the loader package without a real expression
// engine, parser or settings store. Grounded on golang-dep's
// bestiary_test.go: short constructors (Builder.Item, Builder.Project,
// Builder.Product, ...) build fixture data directly as Go values instead of parsing source
// text, the same shortcut bestiary_test.go takes with depspecs instead of
// parsing manifests.
package testutil

import (
	"context"
	"sync"

	"github.com/qbs-loader/loader"
)

// Evaluator is a fixture loader.Evaluator: every property read resolves a
// VariantValue by walking the item's prototype chain, with no expression
// language at all. Scripts are modeled as named handler functions
// registered by the test (RunScriptFunc), not compiled source.
type Evaluator struct {
	mu       sync.Mutex
	scripts  map[*loader.Item]RunScriptFunc
	runCount map[*loader.Item]int
	ctx      loader.EvalContext
}

// RunScriptFunc is a test's stand-in for a compiled probe/provider script
// body: given the initial bindings, it returns the final bindings.
type RunScriptFunc func(bindings map[string]interface{}) (map[string]interface{}, error)

// NewEvaluator creates an empty fixture evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		scripts:  map[*loader.Item]RunScriptFunc{},
		runCount: map[*loader.Item]int{},
	}
}

// SetScript registers the script body to run for item's Script/RunScript
// calls.
func (e *Evaluator) SetScript(item *loader.Item, fn RunScriptFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[item] = fn
}

// RunCount reports how many times RunScript actually executed item's
// script body (as opposed to being served from a cache upstream), letting
// tests assert on probe-caching behavior (spec "probe caching across
// runs").
func (e *Evaluator) RunCount(item *loader.Item) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCount[item]
}

func lookupVariant(item *loader.Item, prop string) (*loader.VariantValue, bool) {
	for cur := item; cur != nil; cur = cur.Prototype() {
		if v, ok := cur.OwnProperty(prop); ok {
			if vv, ok := v.(*loader.VariantValue); ok {
				return vv, true
			}
			return nil, false
		}
	}
	return nil, false
}

func (e *Evaluator) String(ctx context.Context, item *loader.Item, prop string, dflt string) (string, bool, error) {
	if vv, ok := lookupVariant(item, prop); ok && !vv.IsList {
		if s, ok := vv.Scalar.(string); ok {
			return s, true, nil
		}
	}
	return dflt, false, nil
}

func (e *Evaluator) StringList(ctx context.Context, item *loader.Item, prop string, dflt []string) ([]string, bool, error) {
	if vv, ok := lookupVariant(item, prop); ok && vv.IsList {
		out := make([]string, 0, len(vv.List))
		for _, x := range vv.List {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out, true, nil
	}
	return dflt, false, nil
}

func (e *Evaluator) Bool(ctx context.Context, item *loader.Item, prop string, dflt bool) (bool, bool, error) {
	if vv, ok := lookupVariant(item, prop); ok && !vv.IsList {
		if b, ok := vv.Scalar.(bool); ok {
			return b, true, nil
		}
	}
	return dflt, false, nil
}

func (e *Evaluator) Int(ctx context.Context, item *loader.Item, prop string, dflt int) (int, bool, error) {
	if vv, ok := lookupVariant(item, prop); ok && !vv.IsList {
		if n, ok := vv.Scalar.(int); ok {
			return n, true, nil
		}
	}
	return dflt, false, nil
}

func (e *Evaluator) FileTags(ctx context.Context, item *loader.Item, prop string, dflt []string) (map[string]struct{}, bool, error) {
	vals, wasSet, err := e.StringList(ctx, item, prop, dflt)
	if err != nil {
		return nil, false, err
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out, wasSet, nil
}

func (e *Evaluator) Script(ctx context.Context, item *loader.Item) (loader.ScriptValue, error) {
	return item, nil
}

func (e *Evaluator) RunScript(ctx context.Context, sv loader.ScriptValue, bindings map[string]interface{}) (map[string]interface{}, error) {
	item, _ := sv.(*loader.Item)
	e.mu.Lock()
	fn := e.scripts[item]
	e.runCount[item]++
	e.mu.Unlock()
	if fn == nil {
		return bindings, nil
	}
	return fn(bindings)
}

func (e *Evaluator) ClearItemCache(item *loader.Item) {}

func (e *Evaluator) EnableCache() (release func()) { return func() {} }

func (e *Evaluator) WithContext(ctx loader.EvalContext) loader.Evaluator {
	return &Evaluator{scripts: e.scripts, runCount: e.runCount, ctx: ctx}
}

// ItemReader is a fixture loader.ItemReader backed by an in-memory map of
// path -> already-built Item tree, set up directly by the test rather
// than parsed from source text.
type ItemReader struct {
	Files          map[string]*loader.Item
	Dirs           map[string][]string
	searchPathsStack [][]string
	baseSearchPaths  []string
}

// NewItemReader creates a fixture reader with the given initial search
// paths.
func NewItemReader(baseSearchPaths ...string) *ItemReader {
	return &ItemReader{
		Files:           map[string]*loader.Item{},
		Dirs:            map[string][]string{},
		baseSearchPaths: baseSearchPaths,
	}
}

func (r *ItemReader) ReadFile(path string) (*loader.Item, error) {
	it, ok := r.Files[path]
	if !ok {
		return nil, &missingFileError{path: path}
	}
	return it, nil
}

func (r *ItemReader) FindDirectoryEntries(dir string) ([]string, error) {
	return append([]string(nil), r.Dirs[dir]...), nil
}

func (r *ItemReader) SetUpItemFromFile(path string, referencingLocation loader.Location) (*loader.Item, error) {
	return r.ReadFile(path)
}

func (r *ItemReader) WrapInProjectIfNecessary(root *loader.Item) *loader.Item {
	if root.Type() == loader.TypeProject {
		return root
	}
	pool := loader.NewItemPool()
	proj := pool.NewItem(loader.TypeProject, root.Location())
	proj.AddChild(root)
	return proj
}

func (r *ItemReader) PushExtraSearchPaths(paths []string) {
	r.searchPathsStack = append(r.searchPathsStack, paths)
}

func (r *ItemReader) PopExtraSearchPaths() {
	if len(r.searchPathsStack) > 0 {
		r.searchPathsStack = r.searchPathsStack[:len(r.searchPathsStack)-1]
	}
}

func (r *ItemReader) AllSearchPaths() []string {
	out := append([]string(nil), r.baseSearchPaths...)
	for i := len(r.searchPathsStack) - 1; i >= 0; i-- {
		out = append(out, r.searchPathsStack[i]...)
	}
	return out
}

type missingFileError struct{ path string }

func (e *missingFileError) Error() string { return "testutil: no fixture file registered for " + e.path }

// Profiles is a fixture loader.Profiles backed by a map of profile name to
// flat dotted-key configuration.
type Profiles struct {
	Flat map[string]map[string]string
}

// NewProfiles creates an empty fixture profile store; "none" always
// exists and expands to nothing, matching the real default.
func NewProfiles() *Profiles {
	return &Profiles{Flat: map[string]map[string]string{}}
}

func (p *Profiles) Lookup(name string) bool {
	if name == "none" {
		return true
	}
	_, ok := p.Flat[name]
	return ok
}

func (p *Profiles) ExpandedBuildConfiguration(profileName, configName string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range p.Flat[profileName] {
		out[k] = v
	}
	return out, nil
}

func (p *Profiles) FinalBuildConfigurationTree(flat map[string]string, overrides map[string]string) map[string]map[string]interface{} {
	tree := map[string]map[string]interface{}{}
	merge := func(src map[string]string) {
		for k, v := range src {
			mod, prop, ok := splitModuleProperty(k)
			if !ok {
				continue
			}
			if tree[mod] == nil {
				tree[mod] = map[string]interface{}{}
			}
			tree[mod][prop] = v
		}
	}
	merge(flat)
	merge(overrides)
	return tree
}

func splitModuleProperty(key string) (module, property string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
