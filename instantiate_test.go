package loader

import (
	"testing"

	"github.com/qbs-loader/loader/internal/loglib"
)

func newInstantiateTLP(overrides map[string]string) *TopLevelProject {
	tlp := NewTopLevelProject(SetupProjectParameters{OverriddenValues: overrides}, fakeDependsEvaluator{}, nil, nil, nil, nil, loglib.New(discardWriter{}))
	return tlp
}

func TestInstantiateBaseModuleSetsFixedProperties(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, Profile: "debug", TopLevel: tlp}

	rd := &resolvedDependency{via: &evaluatedDepends{}, Required: true}
	inst, defer_, err := instantiateBaseModule(tlp, pc, product, rd)
	if err != nil || defer_ {
		t.Fatalf("instantiateBaseModule: %v, defer=%v", err, defer_)
	}
	v, _ := inst.OwnProperty("profile")
	if v.(*VariantValue).Scalar != "debug" {
		t.Errorf("profile = %v, want debug", v)
	}
	if _, ok := product.ModuleNamed("qbs"); !ok {
		t.Error("expected the qbs module to be attached to the loading item")
	}
}

func TestInstantiateBaseModuleReturnsExistingInstance(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, TopLevel: tlp}

	rd := &resolvedDependency{via: &evaluatedDepends{}, Required: true}
	first, _, err := instantiateBaseModule(tlp, pc, product, rd)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := instantiateBaseModule(tlp, pc, product, rd)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("instantiating the qbs module twice on the same item should return the same instance")
	}
}

func TestInstantiateModuleBindsAtDottedPath(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, TopLevel: tlp}

	proto := pool.NewItem(TypeModule, Location{})
	proto.id = "core"
	proto.SetProperty("enabled", NewVariantScalar(true))

	rd := &resolvedDependency{via: &evaluatedDepends{}, Required: true}
	inst := instantiateModule(tlp, pc, product, "qt.core", proto, rd)

	if inst.Type() != TypeModuleInstance {
		t.Errorf("Type() = %v, want TypeModuleInstance", inst.Type())
	}
	qtVal, ok := product.OwnProperty("qt")
	if !ok {
		t.Fatal("expected a qt property on the product")
	}
	qtItem := qtVal.(*ItemValue).Item
	if qtItem.Type() != TypeModulePrefix {
		t.Errorf("intermediate qt item Type() = %v, want TypeModulePrefix", qtItem.Type())
	}
	coreVal, ok := qtItem.OwnProperty("core")
	if !ok || coreVal.(*ItemValue).Item != inst {
		t.Error("expected qt.core to resolve to the returned instance")
	}
}

func TestInstantiateBaseModuleAppliesQbsShorthandOverride(t *testing.T) {
	tlp := newInstantiateTLP(map[string]string{"qbs.architecture": "arm64"})
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, TopLevel: tlp, Name: "app"}

	proto := pool.NewItem(TypeModule, Location{})
	proto.id = "qbs-proto" // instantiateModule is only called for non-"qbs" names here

	rd := &resolvedDependency{via: &evaluatedDepends{}, Required: true}
	_, _, err := instantiateBaseModule(tlp, pc, product, rd)
	if err != nil {
		t.Fatal(err)
	}
	inst, _ := product.ModuleNamed("qbs")
	v, ok := inst.Instance.OwnProperty("architecture")
	if !ok || v.(*VariantValue).Scalar != "arm64" {
		t.Errorf("architecture override not applied, got %v, %v", v, ok)
	}
}

func TestInstantiateNonPresentModuleRecordsAbsentReason(t *testing.T) {
	pool := NewItemPool()
	product := pool.NewItem(TypeProduct, Location{})
	inst, defer_, err := instantiateNonPresentModule(&ProductContext{Item: product}, product, "missing", "no module named missing could be found")
	if err != nil || defer_ || inst != nil {
		t.Fatalf("instantiateNonPresentModule returned inst=%v defer=%v err=%v", inst, defer_, err)
	}
	mod, ok := product.ModuleNamed("missing")
	if !ok || mod.Present {
		t.Fatal("expected a non-present module sentinel to be attached")
	}
	if mod.AbsentReason == "" {
		t.Error("expected AbsentReason to be recorded")
	}
}

func TestLastSegment(t *testing.T) {
	if lastSegment("qt.core") != "core" {
		t.Errorf("lastSegment(qt.core) = %q, want core", lastSegment("qt.core"))
	}
	if lastSegment("cpp") != "cpp" {
		t.Errorf("lastSegment(cpp) = %q, want cpp", lastSegment("cpp"))
	}
}

func TestHostPlatformAndArchitectureNamesAreNonEmpty(t *testing.T) {
	if hostPlatformName() == "" {
		t.Error("hostPlatformName should never be empty")
	}
	if hostArchitectureName() == "" {
		t.Error("hostArchitectureName should never be empty")
	}
}
