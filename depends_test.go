package loader

import (
	"context"
	"testing"
)

// fakeDependsEvaluator resolves property reads by walking the item's
// prototype chain and type-asserting a *VariantValue, same shortcut
// testutil.Evaluator takes for external callers, reimplemented locally
// here so this white-box test file doesn't import testutil (which
// imports loader) and risk a test import cycle.
type fakeDependsEvaluator struct{}

func fakeVariant(item *Item, prop string) (*VariantValue, bool) {
	for cur := item; cur != nil; cur = cur.Prototype() {
		if v, ok := cur.OwnProperty(prop); ok {
			vv, ok := v.(*VariantValue)
			return vv, ok
		}
	}
	return nil, false
}

func (fakeDependsEvaluator) String(ctx context.Context, item *Item, prop string, dflt string) (string, bool, error) {
	if vv, ok := fakeVariant(item, prop); ok && !vv.IsList {
		if s, ok := vv.Scalar.(string); ok {
			return s, true, nil
		}
	}
	return dflt, false, nil
}

func (fakeDependsEvaluator) StringList(ctx context.Context, item *Item, prop string, dflt []string) ([]string, bool, error) {
	if vv, ok := fakeVariant(item, prop); ok && vv.IsList {
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

func (fakeDependsEvaluator) Bool(ctx context.Context, item *Item, prop string, dflt bool) (bool, bool, error) {
	if vv, ok := fakeVariant(item, prop); ok && !vv.IsList {
		if b, ok := vv.Scalar.(bool); ok {
			return b, true, nil
		}
	}
	return dflt, false, nil
}

func (fakeDependsEvaluator) Int(ctx context.Context, item *Item, prop string, dflt int) (int, bool, error) {
	return dflt, false, nil
}

func (fakeDependsEvaluator) FileTags(ctx context.Context, item *Item, prop string, dflt []string) (map[string]struct{}, bool, error) {
	return nil, false, nil
}

func (fakeDependsEvaluator) Script(ctx context.Context, item *Item) (ScriptValue, error) {
	return nil, nil
}

func (fakeDependsEvaluator) RunScript(ctx context.Context, sv ScriptValue, bindings map[string]interface{}) (map[string]interface{}, error) {
	return bindings, nil
}

func (fakeDependsEvaluator) ClearItemCache(item *Item)                {}
func (fakeDependsEvaluator) EnableCache() (release func())            { return func() {} }
func (fakeDependsEvaluator) WithContext(ctx EvalContext) Evaluator    { return fakeDependsEvaluator{} }

func TestEvaluateDependsReadsNameAndFlags(t *testing.T) {
	pool := NewItemPool()
	it := pool.NewItem(TypeDepends, Location{})
	it.SetProperty("name", NewVariantScalar("cpp"))
	it.SetProperty("required", NewVariantScalar(false))

	tlp := &TopLevelProject{Evaluator: fakeDependsEvaluator{}}
	ed, err := evaluateDepends(context.Background(), tlp, nil, it)
	if err != nil {
		t.Fatalf("evaluateDepends: %v", err)
	}
	if ed.Name != "cpp" {
		t.Errorf("Name = %q, want cpp", ed.Name)
	}
	if ed.Required {
		t.Error("Required should be false")
	}
}

func TestEvaluateDependsRejectsNameAndProductTypesTogether(t *testing.T) {
	pool := NewItemPool()
	it := pool.NewItem(TypeDepends, Location{})
	it.SetProperty("name", NewVariantScalar("cpp"))
	it.SetProperty("productTypes", NewVariantList([]interface{}{"application"}))

	tlp := &TopLevelProject{Evaluator: fakeDependsEvaluator{}}
	if _, err := evaluateDepends(context.Background(), tlp, nil, it); err == nil {
		t.Fatal("expected an error when both name and productTypes are set")
	}
}

func TestEvaluateDependsRequiresNameOrProductTypes(t *testing.T) {
	pool := NewItemPool()
	it := pool.NewItem(TypeDepends, Location{})

	tlp := &TopLevelProject{Evaluator: fakeDependsEvaluator{}}
	if _, err := evaluateDepends(context.Background(), tlp, nil, it); err == nil {
		t.Fatal("expected an error when neither name nor productTypes is set")
	}
}

func TestEvaluateDependsRejectsMultipleSubmodulesWithID(t *testing.T) {
	pool := NewItemPool()
	it := pool.NewItem(TypeDepends, Location{})
	it.id = "named"
	it.SetProperty("name", NewVariantScalar("cpp"))
	it.SetProperty("submodules", NewVariantList([]interface{}{"a", "b"}))

	tlp := &TopLevelProject{Evaluator: fakeDependsEvaluator{}}
	if _, err := evaluateDepends(context.Background(), tlp, nil, it); err == nil {
		t.Fatal("expected an error for multiple submodules with an explicit id")
	}
}

func TestCrossProductDependsExpandsAxes(t *testing.T) {
	ed := &evaluatedDepends{
		Name:                      "cpp",
		Profiles:                  []string{"debug", "release"},
		MultiplexConfigurationIDs: []string{"id1"},
		Required:                  true,
	}
	out := crossProductDepends(ed)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for _, rd := range out {
		if rd.ModuleName != "cpp" || rd.MultiplexConfigID != "id1" || !rd.Required {
			t.Errorf("unexpected resolvedDependency: %+v", rd)
		}
	}
}

func TestCrossProductDependsDefaultsEmptyAxesToOne(t *testing.T) {
	ed := &evaluatedDepends{Name: "cpp"}
	out := crossProductDepends(ed)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 when no axes are set", len(out))
	}
	if out[0].SubModule != "" || out[0].MultiplexConfigID != "" {
		t.Errorf("unexpected resolvedDependency: %+v", out[0])
	}
}

func TestProfileInList(t *testing.T) {
	if !profileInList("debug", []string{"release", "debug"}) {
		t.Error("expected debug to be found")
	}
	if profileInList("debug", []string{"release"}) {
		t.Error("did not expect debug to be found")
	}
}

func TestMultiplexByProductTypesExcludesSelfAndSortsByName(t *testing.T) {
	tlp := NewTopLevelProject(SetupProjectParameters{}, fakeDependsEvaluator{}, nil, nil, nil, nil, nil)
	pool := NewItemPool()

	self := &ProductContext{Name: "app", TopLevel: tlp}
	b := &ProductContext{Name: "libB", Item: pool.NewItem(TypeProduct, Location{}), TopLevel: tlp, Enabled: true}
	a := &ProductContext{Name: "libA", Item: pool.NewItem(TypeProduct, Location{}), TopLevel: tlp, Enabled: true}

	tlp.RegisterProduct(b, []string{"staticlibrary"})
	tlp.RegisterProduct(a, []string{"staticlibrary"})
	tlp.RegisterProduct(self, []string{"staticlibrary"})

	ed := &evaluatedDepends{ProductTypes: []string{"staticlibrary"}}
	out, err := multiplexByProductTypes(tlp, self, ed)
	if err != nil {
		t.Fatalf("multiplexByProductTypes: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (self excluded)", len(out))
	}
	if out[0].TargetProductName != "libA" || out[1].TargetProductName != "libB" {
		t.Errorf("expected results sorted by name, got %q, %q", out[0].TargetProductName, out[1].TargetProductName)
	}
}

func TestReorderModuleToEndMovesNamedModuleLast(t *testing.T) {
	pool := NewItemPool()
	root := pool.NewItem(TypeProduct, Location{})
	cpp := &Module{Name: "cpp"}
	qbs := &Module{Name: "qbs"}
	root.AttachModule(cpp)
	root.AttachModule(qbs)

	reorderModuleToEnd(root, cpp)

	mods := root.Modules()
	if mods[len(mods)-1] != cpp {
		t.Errorf("expected cpp to be moved to the end, got order %+v", mods)
	}
}

func TestMultiplexConfigIDRoundTrip(t *testing.T) {
	tlp := NewTopLevelProject(SetupProjectParameters{}, fakeDependsEvaluator{}, nil, nil, nil, nil, nil)
	axes := map[string]string{"arch": "x86_64", "buildVariant": "debug"}

	id, err := MultiplexConfigIDFromAxes(tlp, axes)
	if err != nil {
		t.Fatalf("MultiplexConfigIDFromAxes: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty id for non-empty axes")
	}

	decoded, ok := DecodeMultiplexConfigID(tlp, id)
	if !ok {
		t.Fatal("expected DecodeMultiplexConfigID to find the registered id")
	}
	if decoded["arch"] != "x86_64" || decoded["buildVariant"] != "debug" {
		t.Errorf("decoded axes = %+v", decoded)
	}
}

func TestMultiplexConfigIDEmptyAxesYieldEmptyID(t *testing.T) {
	tlp := NewTopLevelProject(SetupProjectParameters{}, fakeDependsEvaluator{}, nil, nil, nil, nil, nil)
	id, err := MultiplexConfigIDFromAxes(tlp, nil)
	if err != nil {
		t.Fatalf("MultiplexConfigIDFromAxes: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty for nil axes", id)
	}
	decoded, ok := DecodeMultiplexConfigID(tlp, "")
	if !ok || decoded != nil {
		t.Errorf("DecodeMultiplexConfigID(\"\") = %+v, %v, want nil, true", decoded, ok)
	}
}
