package loader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qbs-loader/loader/internal/loglib"
	"github.com/qbs-loader/loader/internal/trie"
)

func TestMergedProviderOverridesFiltersByPrefix(t *testing.T) {
	tlp := NewTopLevelProject(SetupProjectParameters{
		OverriddenValues: map[string]string{
			"moduleProviders.qmake.path": "/usr/bin/qmake",
			"products.app.version":       "1.0",
		},
	}, fakeDependsEvaluator{}, nil, nil, nil, nil, nil)

	out := mergedProviderOverrides(tlp, "qmake")
	if len(out) != 1 || out["path"] != "/usr/bin/qmake" {
		t.Errorf("mergedProviderOverrides = %+v", out)
	}
}

func TestQbsSnapshotForProviderCollectsSysrootAndToolchain(t *testing.T) {
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	qbsInst := pool.NewItem(TypeModuleInstance, Location{})
	qbsInst.SetProperty("sysroot", NewVariantScalar("/sysroot"))
	qbsInst.SetProperty("toolchain", NewVariantList([]interface{}{"gcc"}))
	product.AttachModule(&Module{Name: "qbs", Instance: qbsInst, Present: true})

	snap := qbsSnapshotForProvider(&ProductContext{Item: product})
	if snap["sysroot"] != "/sysroot" {
		t.Errorf("snap[sysroot] = %q", snap["sysroot"])
	}
	if _, ok := snap["toolchain"]; !ok {
		t.Error("expected a toolchain entry even though it's a list value")
	}
}

func TestQbsSnapshotForProviderEmptyWithoutQbsModule(t *testing.T) {
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	snap := qbsSnapshotForProvider(&ProductContext{Item: product})
	if len(snap) != 0 {
		t.Errorf("snap = %+v, want empty", snap)
	}
}

func TestFormatScalar(t *testing.T) {
	if formatScalar("x") != "x" {
		t.Errorf("formatScalar(string) = %q", formatScalar("x"))
	}
	if formatScalar(true) != "true" {
		t.Errorf("formatScalar(bool) = %q", formatScalar(true))
	}
}

func TestModuleProviderConfigCacheKeyStableAndDistinguishing(t *testing.T) {
	a := moduleProviderConfig{Name: "qmake", Config: map[string]string{"x": "1"}, LookupMode: "named"}
	b := moduleProviderConfig{Name: "qmake", Config: map[string]string{"x": "1"}, LookupMode: "named"}
	c := moduleProviderConfig{Name: "qmake", Config: map[string]string{"x": "2"}, LookupMode: "named"}
	if a.cacheKey() != b.cacheKey() {
		t.Error("identical configs should hash identically")
	}
	if a.cacheKey() == c.cacheKey() {
		t.Error("differing config values should hash differently")
	}
}

func newProviderTLP(ir ItemReader) *TopLevelProject {
	return NewTopLevelProject(SetupProjectParameters{}, fakeDependsEvaluator{}, ir, nil, nil, nil, loglib.New(discardWriter{}))
}

func TestTryNamedProviderRunsProviderAndLoadsModule(t *testing.T) {
	pool := NewItemPool()
	providerItem := pool.NewItem(TypeModule, Location{})
	providerItem.SetProperty("relativeSearchPaths", NewVariantList([]interface{}{"out"}))

	cppProto := pool.NewItem(TypeModule, Location{})
	cppProto.id = "cpp"

	cfg := moduleProviderConfig{Name: "cpp", Config: map[string]string{}, QbsView: map[string]string{}, LookupMode: "named"}
	outDir := filepath.Join("", ".qbs", "module-providers", cfg.cacheKey(), "out")
	cppFile := filepath.Join(outDir, "modules", "cpp", "cpp.qbs")

	ir := &fakeModuleItemReader{
		dirs:  map[string][]string{filepath.Join(outDir, "modules", "cpp"): {cppFile}},
		files: map[string]*Item{"/sp/module-providers/cpp.qbs": providerItem, cppFile: cppProto},
	}
	tlp := newProviderTLP(ir)
	pc := &ProductContext{SearchPaths: []string{"/sp"}, TopLevel: tlp, Item: pool.NewItem(TypeProduct, Location{})}

	got, err := tryNamedProvider(context.Background(), tlp, pc, "/sp", "cpp")
	if err != nil {
		t.Fatalf("tryNamedProvider: %v", err)
	}
	if got == nil {
		t.Fatal("expected the named provider to resolve the cpp module")
	}
}

func TestTryNamedProviderReturnsNilWhenNoProviderFile(t *testing.T) {
	ir := &fakeModuleItemReader{dirs: map[string][]string{}, files: map[string]*Item{}}
	tlp := newProviderTLP(ir)
	pc := &ProductContext{SearchPaths: []string{"/sp"}, TopLevel: tlp, Item: NewItemPool().NewItem(TypeProduct, Location{})}

	got, err := tryNamedProvider(context.Background(), tlp, pc, "/sp", "cpp")
	if err != nil || got != nil {
		t.Fatalf("tryNamedProvider = %v, %v, want nil, nil", got, err)
	}
}

func TestTryScopedProviderReusesTrieEntry(t *testing.T) {
	pool := NewItemPool()
	cppProto := pool.NewItem(TypeModule, Location{})
	cppProto.id = "cpp"

	ir := &fakeModuleItemReader{
		dirs:  map[string][]string{"/extra/modules/cpp": {"/extra/modules/cpp/cpp.qbs"}},
		files: map[string]*Item{"/extra/modules/cpp/cpp.qbs": cppProto},
	}
	tlp := newProviderTLP(ir)
	tlp.providerTrie.Insert("/sp/cpp", trie.Entry{SearchPaths: []string{"/extra"}, LookupMode: "scoped"})
	pc := &ProductContext{SearchPaths: []string{"/sp"}, TopLevel: tlp, Item: pool.NewItem(TypeProduct, Location{})}

	got, err := tryScopedProvider(context.Background(), tlp, pc, "/sp", "cpp")
	if err != nil {
		t.Fatalf("tryScopedProvider: %v", err)
	}
	if got != cppProto {
		t.Error("expected the cached trie entry's search path to locate the cpp module directly")
	}
}

func TestTryFallbackProviderReturnsNilWhenNoProviderFile(t *testing.T) {
	ir := &fakeModuleItemReader{dirs: map[string][]string{}, files: map[string]*Item{}}
	tlp := newProviderTLP(ir)
	pc := &ProductContext{SearchPaths: []string{"/sp"}, TopLevel: tlp, Item: NewItemPool().NewItem(TypeProduct, Location{})}

	got, err := tryFallbackProvider(context.Background(), tlp, pc, "/sp", "cpp")
	if err != nil || got != nil {
		t.Fatalf("tryFallbackProvider = %v, %v, want nil, nil", got, err)
	}
}

func TestTryModuleProvidersResolvesViaNamedProvider(t *testing.T) {
	pool := NewItemPool()
	providerItem := pool.NewItem(TypeModule, Location{})
	providerItem.SetProperty("relativeSearchPaths", NewVariantList([]interface{}{"."}))
	cppProto := pool.NewItem(TypeModule, Location{})
	cppProto.id = "cpp"

	cfg := moduleProviderConfig{Name: "cpp", Config: map[string]string{}, QbsView: map[string]string{}, LookupMode: "named"}
	outDir := filepath.Join("", ".qbs", "module-providers", cfg.cacheKey())
	cppFile := filepath.Join(outDir, "modules", "cpp", "cpp.qbs")

	ir := &fakeModuleItemReader{
		dirs:  map[string][]string{filepath.Join(outDir, "modules", "cpp"): {cppFile}},
		files: map[string]*Item{"/sp/module-providers/cpp.qbs": providerItem, cppFile: cppProto},
	}
	tlp := newProviderTLP(ir)
	pc := &ProductContext{SearchPaths: []string{"/sp"}, TopLevel: tlp, Item: pool.NewItem(TypeProduct, Location{})}

	got, err := tryModuleProviders(context.Background(), tlp, pc, "cpp")
	if err != nil {
		t.Fatalf("tryModuleProviders: %v", err)
	}
	if got == nil {
		t.Fatal("expected the named provider to win")
	}
}
