package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/qbs-loader/loader/internal/probecache"
	"github.com/qbs-loader/loader/internal/trie"
)

// moduleProviderConfig is the merged configuration map handed to a
// provider: assigned product values plus command-line
// `moduleProviders.x.y` overrides (spec §4.E).
type moduleProviderConfig struct {
	Name       string
	Config     map[string]string
	QbsView    map[string]string // sysroot, toolchain, ... (spec §4.E cache key participants)
	LookupMode string
}

func (c moduleProviderConfig) cacheKey() string {
	data, _ := json.Marshal(struct {
		Name    string
		Config  map[string]string
		QbsView map[string]string
		Mode    string
	}{c.Name, c.Config, c.QbsView, c.LookupMode})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// tryModuleProviders implements the Module Provider Loader (spec §4.E) for
// a name whose disk lookup failed: it tries the Named, then Scoped, then
// (when FallbackProviderEnabled is set) Fallback lookup mode, each across
// every search path of pc in order. Provider files are found by module
// name on the search paths; no moduleProviders property of the product or
// its modules is read.
func tryModuleProviders(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, name string) (*Item, error) {
	for _, sp := range pc.SearchPaths {
		if it, err := tryNamedProvider(ctx, tlp, pc, sp, name); err != nil {
			return nil, err
		} else if it != nil {
			return it, nil
		}
	}
	for _, sp := range pc.SearchPaths {
		if it, err := tryScopedProvider(ctx, tlp, pc, sp, name); err != nil {
			return nil, err
		} else if it != nil {
			return it, nil
		}
	}
	if tlp.Params.FallbackProviderEnabled {
		for _, sp := range pc.SearchPaths {
			if it, err := tryFallbackProvider(ctx, tlp, pc, sp, name); err != nil {
				return nil, err
			} else if it != nil {
				return it, nil
			}
		}
	}
	return nil, nil
}

func tryNamedProvider(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, searchPath, name string) (*Item, error) {
	path := filepath.Join(searchPath, "module-providers", name+".qbs")
	root, err := tlp.ItemReader.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	return runModuleProvider(ctx, tlp, pc, root, moduleProviderConfig{Name: name, LookupMode: "named"}, name)
}

func tryScopedProvider(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, searchPath, name string) (*Item, error) {
	trieKey := searchPath + "/" + name
	if prefix, entry, ok := tlp.providerTrie.LongestPrefix(trieKey); ok && prefix == trieKey {
		pc.SearchPaths = append(pc.SearchPaths, entry.SearchPaths...)
		return findOrLoadModulePrototype(ctx, tlp, pc, name)
	}

	segments := strings.Split(name, ".")
	for i := len(segments); i > 0; i-- {
		suffix := strings.Join(segments[:i], string(filepath.Separator))
		path := filepath.Join(searchPath, "module-providers", suffix, "provider.qbs")
		root, err := tlp.ItemReader.ReadFile(path)
		if err != nil {
			continue
		}
		it, err := runModuleProvider(ctx, tlp, pc, root, moduleProviderConfig{Name: name, LookupMode: "scoped"}, name)
		if err != nil {
			return nil, err
		}
		if it != nil {
			tlp.providerTrie.Insert(trieKey, trie.Entry{SearchPaths: pc.SearchPaths, LookupMode: "scoped"})
			return it, nil
		}
	}
	return nil, nil
}

func tryFallbackProvider(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, searchPath, name string) (*Item, error) {
	path := filepath.Join(searchPath, "module-providers", "__fallback", "provider.qbs")
	root, err := tlp.ItemReader.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	return runModuleProvider(ctx, tlp, pc, root, moduleProviderConfig{Name: name, LookupMode: "fallback"}, name)
}

// runModuleProvider executes (or reuses a cached run of) one provider
// item, extends pc's search paths with the result, and returns the module
// prototype found there (if any).
func runModuleProvider(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, providerItem *Item, cfg moduleProviderConfig, wantModule string) (*Item, error) {
	cfg.Config = mergedProviderOverrides(tlp, cfg.Name)
	cfg.QbsView = qbsSnapshotForProvider(pc)
	key := cfg.cacheKey()

	var searchPaths []string
	if tlp.ProbeCache != nil {
		if entry, ok, err := tlp.ProbeCache.GetProvider(key); err == nil && ok {
			searchPaths = entry.SearchPaths
		}
	}

	if searchPaths == nil {
		paths, err := evaluateProviderSearchPaths(ctx, tlp, pc, providerItem, cfg)
		if err != nil {
			return nil, err
		}
		searchPaths = paths
		if tlp.ProbeCache != nil {
			if err := tlp.ProbeCache.PutProvider(key, &probecache.Entry{SearchPaths: searchPaths}); err != nil {
				tlp.Log.Debugf("failed to persist module provider cache entry for %s: %v", cfg.Name, err)
			}
		}
	}

	tlp.mu.Lock()
	tlp.providerCache[key] = searchPaths
	tlp.mu.Unlock()

	pc.SearchPaths = append(pc.SearchPaths, searchPaths...)

	proto, err := findOrLoadModulePrototype(ctx, tlp, pc, wantModule)
	if err != nil {
		return nil, err
	}
	return proto, nil
}

// evaluateProviderSearchPaths synthesizes a transient item inheriting the
// provider and evaluates its `relativeSearchPaths`, resolving them against
// a deterministic output directory derived from the (name, config,
// qbs-snapshot) hash (spec §4.E "Execution").
func evaluateProviderSearchPaths(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, providerItem *Item, cfg moduleProviderConfig) ([]string, error) {
	pool := tlp.NewPool()
	transient := pool.Clone(providerItem)
	for k, v := range cfg.Config {
		transient.SetProperty(k, NewVariantScalar(v))
	}

	outDir := filepath.Join(tlp.Params.BuildRoot, ".qbs", "module-providers", cfg.cacheKey())

	rel, _, err := tlp.Evaluator.WithContext(EvalContextModuleProvider).StringList(ctx, transient, "relativeSearchPaths", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: module provider %q failed to evaluate relativeSearchPaths", providerItem.Location(), cfg.Name)
	}

	abs := make([]string, 0, len(rel))
	for _, r := range rel {
		abs = append(abs, filepath.Join(outDir, r))
	}
	sort.Strings(abs)
	return abs, nil
}

func mergedProviderOverrides(tlp *TopLevelProject, providerName string) map[string]string {
	out := map[string]string{}
	prefix := "moduleProviders." + providerName + "."
	for k, v := range tlp.Params.OverriddenValues {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// qbsSnapshotForProvider captures the handful of qbs.* properties the
// spec names as cache-key participants (sysroot, toolchain).
func qbsSnapshotForProvider(pc *ProductContext) map[string]string {
	snap := map[string]string{}
	qbsMod, ok := pc.Item.ModuleNamed("qbs")
	if !ok {
		return snap
	}
	for _, name := range []string{"sysroot", "toolchain"} {
		if v, ok := qbsMod.Instance.OwnProperty(name); ok {
			if vv, ok := v.(*VariantValue); ok {
				snap[name] = formatScalar(vv.Scalar)
			}
		}
	}
	return snap
}

func formatScalar(x interface{}) string {
	if s, ok := x.(string); ok {
		return s
	}
	b, _ := json.Marshal(x)
	return string(b)
}
