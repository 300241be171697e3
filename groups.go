package loader

// buildGroupModuleViews implements the Groups Handler (spec §4.J): for
// each Group child of a product, install a per-group placeholder instance
// for every module present on the product, scoped to the group's own
// project/product bindings, so the group can override module properties
// in a local sandbox without affecting the product scope.
func buildGroupModuleViews(tlp *TopLevelProject, pc *ProductContext) {
	for _, child := range pc.Item.Children() {
		if child.Type() != TypeGroup {
			continue
		}
		buildGroupView(tlp, pc, child, pc.Disabled)
	}
}

func buildGroupView(tlp *TopLevelProject, pc *ProductContext, group *Item, parentDisabled bool) {
	disabled := parentDisabled || groupDisabled(group)
	if disabled {
		tlp.MarkDisabled(group)
	}

	pool := tlp.NewPool()
	scope := pool.NewItem(TypeScope, group.Location())
	scope.SetProperty("project", &ItemValue{Item: pc.Project.Root})
	scope.SetProperty("product", &ItemValue{Item: pc.Item})

	for _, mod := range pc.Item.Modules() {
		if mod.Instance == nil {
			continue
		}
		placeholder := pool.Clone(mod.Instance)
		placeholder.SetType(TypeModuleInstancePlaceholder)
		placeholder.SetScope(scope)
		scope.SetProperty(lastSegment(mod.Name), &ItemValue{Item: placeholder})
		rewireModuleBackReferences(group, mod.Name, placeholder)
	}
	group.SetScope(scope)

	filesAreTargets, _ := groupBoolProperty(group, "filesAreTargets")
	if filesAreTargets {
		markGroupFilesAsModuleOutput(group)
	}

	for _, nested := range group.Children() {
		if nested.Type() == TypeGroup {
			buildGroupView(tlp, pc, nested, disabled)
		}
	}
}

func groupDisabled(group *Item) bool {
	v, ok := groupBoolProperty(group, "condition")
	return ok && !v
}

func groupBoolProperty(group *Item, name string) (bool, bool) {
	v, ok := group.OwnProperty(name)
	if !ok {
		return false, false
	}
	vv, ok := v.(*VariantValue)
	if !ok {
		return false, false
	}
	b, ok := vv.Scalar.(bool)
	return b, ok
}

// rewireModuleBackReferences points group-local references to modName at
// placeholder instead of the shared module instance, so group-scope
// lookups resolve to the sandboxed copy (spec §4.J).
func rewireModuleBackReferences(group *Item, modName string, placeholder *Item) {
	group.SetProperty(lastSegment(modName), &ItemValue{Item: placeholder})
}

// markGroupFilesAsModuleOutput tags a `filesAreTargets` group's contents
// as build output rather than build input (spec §4.J).
func markGroupFilesAsModuleOutput(group *Item) {
	group.SetPropertyOptions("files", &PropertyOptions{})
}
