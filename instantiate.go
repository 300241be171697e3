package loader

import (
	"runtime"
	"strings"
)

// hostPlatformName and hostArchitectureName back the built-in qbs module's
// hostPlatform/hostArchitecture properties (spec §4.F), read once from the
// Go runtime rather than re-detected per load.
func hostPlatformName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	default:
		return runtime.GOOS
	}
}

func hostArchitectureName() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	default:
		return runtime.GOARCH
	}
}

// instantiateModule implements the Module Instantiator (spec §4.G) for a
// module loaded from disk: bind proto's clone into loadingItem's value
// tree at the dotted name path, switch its type to ModuleInstance exactly
// once, build its private Scope item, and apply command-line overrides.
func instantiateModule(tlp *TopLevelProject, pc *ProductContext, loadingItem *Item, name string, proto *Item, rd *resolvedDependency) *Item {
	pool := tlp.NewPool()

	if existing, ok := loadingItem.ModuleNamed(name); ok && existing.Present {
		existing.LoadingItems = append(existing.LoadingItems, loadingItem)
		return existing.Instance
	}

	inst := bindModuleAtPath(pc.MergeTable(), pool, loadingItem, name, proto)
	if inst.Type() != TypeModuleInstance {
		inst.SetType(TypeModuleInstance)
	}

	scope := buildModuleScope(tlp, pc, loadingItem, inst, name, nil)
	inst.SetScope(scope)

	mod := &Module{
		Name:         name,
		Instance:     inst,
		VersionRange: rd.via.VersionRange,
		LoadingItems: []*Item{loadingItem},
		Parameters:   rd.via.Parameters,
		Required:     rd.Required,
		Present:      true,
	}
	loadingItem.AttachModule(mod)
	pc.Item.AttachModule(mod)

	applyModuleOverrides(tlp, pc, name, inst)
	return inst
}

// instantiateBaseModule injects the built-in `qbs` module's fixed
// properties directly rather than loading it from disk (spec §4.F
// "Special built-in base module").
func instantiateBaseModule(tlp *TopLevelProject, pc *ProductContext, loadingItem *Item, rd *resolvedDependency) (*Item, bool, error) {
	if existing, ok := loadingItem.ModuleNamed("qbs"); ok {
		return existing.Instance, false, nil
	}

	pool := tlp.NewPool()
	inst := pool.NewItem(TypeModuleInstance, Location{})
	inst.id = "qbs"

	inst.SetProperty("hostPlatform", NewVariantScalar(hostPlatformName()))
	inst.SetProperty("hostArchitecture", NewVariantScalar(hostArchitectureName()))
	inst.SetProperty("libexecPath", NewVariantScalar(tlp.Params.LibexecPath))
	inst.SetProperty("version", NewVariantScalar(loaderVersion))
	inst.SetProperty("versionMajor", NewVariantScalar(loaderVersionMajor))
	inst.SetProperty("versionMinor", NewVariantScalar(loaderVersionMinor))
	inst.SetProperty("versionPatch", NewVariantScalar(loaderVersionPatch))
	inst.SetProperty("profile", NewVariantScalar(pc.Profile))

	scope := buildModuleScope(tlp, pc, loadingItem, inst, "qbs", nil)
	inst.SetScope(scope)

	mod := &Module{Name: "qbs", Instance: inst, LoadingItems: []*Item{loadingItem}, Required: true, Present: true}
	loadingItem.AttachModule(mod)
	pc.Item.AttachModule(mod)
	applyModuleOverrides(tlp, pc, "qbs", inst)
	return inst, false, nil
}

// instantiateProductModule binds another product's merged Export item
// ("product module") as a module instance, populating the Export-specific
// scope bindings (spec §4.G).
func instantiateProductModule(tlp *TopLevelProject, pc *ProductContext, target *ProductContext, rd *resolvedDependency) (*Item, bool, error) {
	if target.ExportItem == nil {
		if rd.Required {
			return nil, false, &missingDependencyError{requester: pc.Name, name: target.Name, loc: loadingItemLocation(rd)}
		}
		return nil, false, nil
	}

	pool := tlp.NewPool()
	inst := pool.CloneWithChildren(target.ExportItem)
	inst.SetType(TypeModuleInstance)

	extra := map[string]Value{
		"exportingProduct": &VariantValue{Scalar: target.Name},
		"importingProduct": &VariantValue{Scalar: pc.Name},
		"_qbs_sourceDir":   &VariantValue{Scalar: ""},
	}
	scope := buildModuleScope(tlp, pc, pc.Item, inst, target.Name, extra)
	inst.SetScope(scope)

	mod := &Module{
		Name:             target.Name,
		Instance:         inst,
		ProducingProduct: target,
		LoadingItems:     []*Item{pc.Item},
		Parameters:       rd.via.Parameters,
		Required:         rd.Required,
		Present:          true,
	}
	pc.Item.AttachModule(mod)
	applyModuleOverrides(tlp, pc, target.Name, inst)
	return inst, false, nil
}

// instantiateNonPresentModule installs the "non-present module" sentinel
// described in spec §4.G: the name is still registered so `<name>.present`
// evaluates false and later lookups short-circuit.
func instantiateNonPresentModule(pc *ProductContext, loadingItem *Item, name, reason string) (*Item, bool, error) {
	mod := &Module{Name: name, LoadingItems: []*Item{loadingItem}, Present: false, AbsentReason: reason}
	loadingItem.AttachModule(mod)
	return nil, false, nil
}

// bindModuleAtPath resolves spec §4.G's three cases for the value at
// name's path on loadingItem: absent (create a fresh ItemValue), a
// ModulePrefix chain ending in a placeholder (replace the leaf), or
// already a ModuleInstance (no-op, return it).
func bindModuleAtPath(mt *mergeTable, pool *ItemPool, loadingItem *Item, name string, proto *Item) *Item {
	segments := strings.Split(name, ".")
	cur := loadingItem
	for i, seg := range segments {
		v, ok := cur.OwnProperty(seg)
		if !ok {
			child := pool.Clone(proto)
			if i < len(segments)-1 {
				child.SetType(TypeModulePrefix)
			}
			cur.SetProperty(seg, &ItemValue{Item: child})
			cur = child
			continue
		}
		iv, ok := v.(*ItemValue)
		if !ok {
			child := pool.Clone(proto)
			cur.SetProperty(seg, &ItemValue{Item: child})
			cur = child
			continue
		}
		if iv.Item.Type() == TypeModuleInstancePlaceholder {
			replaced := pool.Clone(proto)
			mergeLocalPlaceholderBindings(mt, replaced, iv.Item)
			cur.SetProperty(seg, &ItemValue{Item: replaced})
			cur = replaced
			continue
		}
		cur = iv.Item
	}
	return cur
}

// mergeLocalPlaceholderBindings folds a placeholder's accumulated local
// bindings into the real instance using the Property Merger's local-merge
// rules (spec §4.G, §4.H).
func mergeLocalPlaceholderBindings(mt *mergeTable, real, placeholder *Item) {
	for _, name := range placeholder.PropertyNames() {
		v, _ := placeholder.OwnProperty(name)
		mergeLocalProperty(mt, real, name, v)
	}
}

// buildModuleScope creates the private Scope item populated with project,
// product, the module's own id, its children's ids, and any Export-origin
// extras (spec §4.G).
func buildModuleScope(tlp *TopLevelProject, pc *ProductContext, loadingItem *Item, inst *Item, name string, extra map[string]Value) *Item {
	pool := tlp.NewPool()
	scope := pool.NewItem(TypeScope, inst.Location())
	if pc.Project != nil {
		scope.SetProperty("project", &ItemValue{Item: pc.Project.Root})
	}
	scope.SetProperty("product", &ItemValue{Item: pc.Item})
	scope.SetProperty(lastSegment(name), &ItemValue{Item: inst})
	for _, c := range inst.Children() {
		if c.ID() != "" {
			scope.SetProperty(c.ID(), &ItemValue{Item: c})
		}
	}
	for k, v := range extra {
		scope.SetProperty(k, v)
	}
	return scope
}

func lastSegment(name string) string {
	segs := strings.Split(name, ".")
	return segs[len(segs)-1]
}

// applyModuleOverrides applies modules.<name>.<prop>, qbs.<prop> and
// products.<product>.<name>.<prop> command-line overrides to inst, with
// the per-product override taking precedence (spec §4.G).
func applyModuleOverrides(tlp *TopLevelProject, pc *ProductContext, name string, inst *Item) {
	perProduct := map[string]string{}
	for key, raw := range tlp.Params.OverriddenValues {
		target, err := parseOverrideKey(key)
		if err != nil {
			continue
		}
		switch target.kind {
		case overrideModule:
			if target.module == name {
				inst.SetProperty(target.property, NewVariantScalar(raw))
			}
		case overrideQbsShorthand:
			if name == "qbs" {
				inst.SetProperty(target.property, NewVariantScalar(raw))
			}
		case overrideProductModule:
			if target.product == pc.Name && target.module == name {
				perProduct[target.property] = raw
			}
		}
	}
	for prop, raw := range perProduct {
		inst.SetProperty(prop, NewVariantScalar(raw))
	}
}

const (
	loaderVersion      = "1.0.0"
	loaderVersionMajor = 1
	loaderVersionMinor = 0
	loaderVersionPatch = 0
)
