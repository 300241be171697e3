package loader

import "testing"

func TestBuildGroupModuleViewsCreatesPlaceholderForEachModule(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()

	proj := &ProjectContext{Root: pool.NewItem(TypeProject, Location{})}
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, Project: proj, TopLevel: tlp}

	cppInst := pool.NewItem(TypeModuleInstance, Location{})
	cppInst.id = "cpp"
	product.AttachModule(&Module{Name: "cpp", Instance: cppInst, Present: true})

	group := pool.NewItem(TypeGroup, Location{})
	product.AddChild(group)

	buildGroupModuleViews(tlp, pc)

	scope := group.Scope()
	if scope == nil {
		t.Fatal("expected the group to have a scope installed")
	}
	v, ok := scope.OwnProperty("cpp")
	if !ok {
		t.Fatal("expected the group scope to carry a cpp placeholder")
	}
	placeholder := v.(*ItemValue).Item
	if placeholder.Type() != TypeModuleInstancePlaceholder {
		t.Errorf("placeholder Type() = %v, want TypeModuleInstancePlaceholder", placeholder.Type())
	}
	if placeholder == cppInst {
		t.Error("the group placeholder must be a clone, not the shared instance")
	}
}

func TestBuildGroupViewDisabledWhenConditionFalse(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()
	proj := &ProjectContext{Root: pool.NewItem(TypeProject, Location{})}
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, Project: proj, TopLevel: tlp}

	group := pool.NewItem(TypeGroup, Location{})
	group.SetProperty("condition", NewVariantScalar(false))
	product.AddChild(group)

	buildGroupModuleViews(tlp, pc)

	if !tlp.IsDisabled(group) {
		t.Error("a group with condition=false should be marked disabled")
	}
}

func TestBuildGroupViewPropagatesParentDisabledToNested(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()
	proj := &ProjectContext{Root: pool.NewItem(TypeProject, Location{})}
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, Project: proj, TopLevel: tlp}

	outer := pool.NewItem(TypeGroup, Location{})
	outer.SetProperty("condition", NewVariantScalar(false))
	inner := pool.NewItem(TypeGroup, Location{})
	outer.AddChild(inner)
	product.AddChild(outer)

	buildGroupModuleViews(tlp, pc)

	if !tlp.IsDisabled(inner) {
		t.Error("a nested group under a disabled group should also be disabled")
	}
}

func TestMarkGroupFilesAsModuleOutputSetsPropertyOptions(t *testing.T) {
	tlp := newInstantiateTLP(nil)
	pool := NewItemPool()
	proj := &ProjectContext{Root: pool.NewItem(TypeProject, Location{})}
	product := pool.NewItem(TypeProduct, Location{})
	pc := &ProductContext{Item: product, Project: proj, TopLevel: tlp}

	group := pool.NewItem(TypeGroup, Location{})
	group.SetProperty("filesAreTargets", NewVariantScalar(true))
	product.AddChild(group)

	buildGroupModuleViews(tlp, pc)

	if _, ok := group.PropertyOptionsFor("files"); !ok {
		t.Error("filesAreTargets should tag the files property")
	}
}
