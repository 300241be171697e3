package loader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// evaluatedDepends is a `Depends` item after its scalar fields have been
// read, but before multiplex adjustment has collapsed its axes into
// concrete resolvedDependency records (spec §4.I).
type evaluatedDepends struct {
	item *Item

	Name       string
	SubModules []string
	ProductTypes []string

	MultiplexConfigurationIDs []string
	Profiles                  []string
	ProfilesSet               bool

	VersionRange VersionConstraint

	LimitToSubProject string
	Required          bool
	EnableFallback    bool

	Parameters map[string]Value
}

// resolvedDependency is one concrete, multiplexed target of a Depends item
// (spec §4.I): either a named module to load from disk/providers, or a
// specific product (by multiplex id) to depend on.
type resolvedDependency struct {
	via *evaluatedDepends

	ModuleName        string
	SubModule         string
	MultiplexConfigID string // empty unless this targets one multiplexed variant
	TargetProductName string // set when ProductTypes drove the resolution

	Required bool
}

// initDependencyFrames seeds a product's frame stack with one frame for
// the product item itself, carrying a synthetic dependency on the
// built-in `qbs` base module (spec §4.I "Initialization").
func initDependencyFrames(pc *ProductContext) {
	seed := &evaluatedDepends{Name: "qbs", Required: true}
	frame := &DependencyFrame{
		LoadingItem:     pc.Item,
		PendingDepends:  childDependsItems(pc.Item),
		ResolvedDepends: []*resolvedDependency{{via: seed, ModuleName: "qbs", Required: true}},
	}
	pc.PushFrame(frame)
}

// childDependsItems returns its direct Depends children in declaration
// order, seeding a new frame's PendingDepends FIFO.
func childDependsItems(it *Item) []*Item {
	var out []*Item
	for _, c := range it.Children() {
		if c.Type() == TypeDepends {
			out = append(out, c)
		}
	}
	return out
}

// deferSignal is returned by resolveDependencies to tell the scheduler this
// product cannot make progress right now without violating deferral
// policy.
type deferSignal struct{ reason string }

func (deferSignal) Error() string { return "dependency resolution deferred" }

// resolveDependencies drives one product's dependency state machine to
// completion or to a defer point (spec §4.I main loop), calling back into
// the Module Loader/Instantiator (moduleloader.go, instantiate.go) to
// materialize resolved modules.
func resolveDependencies(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, allowDefer bool) error {
	if pc.frames == nil {
		initDependencyFrames(pc)
	}

	for {
		tlp.checkCancelled()

		frame := pc.TopFrame()
		if frame == nil {
			pc.dependenciesResolved = true
			return nil
		}

		if len(frame.ResolvedDepends) > 0 {
			rd := frame.ResolvedDepends[0]
			materialized, defer_, err := materializeDependency(ctx, tlp, pc, frame, rd)
			if err != nil {
				return err
			}
			if defer_ {
				if !allowDefer {
					return errors.Errorf("dependency resolution stalled for product %q", pc.Name)
				}
				return deferSignal{reason: "module materialization requires an in-progress product"}
			}
			frame.ResolvedDepends = frame.ResolvedDepends[1:]
			if materialized != nil {
				if depth, found := pc.IsLoadingItem(materialized); found {
					cerr := &cycleError{chain: cycleChainFrom(pc, depth, materialized)}
					if !rd.Required {
						tlp.MarkDisabled(frame.LoadingItem)
						tlp.Log.Debugf("pruned non-required cyclic branch: %s", cerr.Error())
						continue
					}
					return cerr
				}
				pc.PushFrame(&DependencyFrame{
					LoadingItem:    materialized,
					ViaDepends:     rd.via.item,
					PendingDepends: childDependsItems(materialized),
				})
			}
			continue
		}

		if frame.CurrentDepends != nil {
			ed := frame.CurrentDepends
			if len(ed.ProductTypes) > 0 && allowDefer {
				return deferSignal{reason: "productTypes axis needs every module loaded first"}
			}
			resolved, err := multiplexDepends(tlp, pc, ed)
			if err != nil {
				return err
			}
			frame.ResolvedDepends = append(frame.ResolvedDepends, resolved...)
			frame.CurrentDepends = nil
			continue
		}

		if len(frame.PendingDepends) > 0 {
			next := frame.PendingDepends[0]
			frame.PendingDepends = frame.PendingDepends[1:]
			ed, err := evaluateDepends(ctx, tlp, pc, next)
			if err != nil {
				return err
			}
			applyMultiplexAdjustmentForDependingProduct(pc, ed)
			frame.CurrentDepends = ed
			continue
		}

		// Frame exhausted: move this item's module to the end of the
		// product's module list and pop (spec §4.I step 5).
		if mod, ok := pc.Item.ModuleNamed(moduleNameOfItem(frame.LoadingItem)); ok {
			reorderModuleToEnd(pc.Item, mod)
		}
		pc.PopFrame()
	}
}

func moduleNameOfItem(it *Item) string {
	if it == nil {
		return ""
	}
	return it.ID()
}

// cycleChainFrom renders the loading-item chain from the frame where the
// reappearing item was first seen (fromDepth) down to its reappearance, for
// cycleError's diagnostic trace.
func cycleChainFrom(pc *ProductContext, fromDepth int, reappearing *Item) []string {
	chain := make([]string, 0, len(pc.frames)-fromDepth+1)
	for _, f := range pc.frames[fromDepth:] {
		chain = append(chain, moduleNameOfItem(f.LoadingItem))
	}
	chain = append(chain, moduleNameOfItem(reappearing))
	return chain
}

func reorderModuleToEnd(root *Item, mod *Module) {
	mods := root.Modules()
	idx := -1
	for i, m := range mods {
		if m == mod {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(mods)-1 {
		return
	}
	reordered := append(append([]*Module{}, mods[:idx]...), mods[idx+1:]...)
	reordered = append(reordered, mod)
	root.modules = reordered
}

// evaluateDepends reads the scalar fields of a Depends item (spec §4.I
// "Depends evaluation").
func evaluateDepends(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, item *Item) (*evaluatedDepends, error) {
	ev := tlp.Evaluator

	name, nameSet, err := ev.String(ctx, item, "name", "")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.name", item.Location())
	}
	productTypes, ptSet, err := ev.StringList(ctx, item, "productTypes", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.productTypes", item.Location())
	}
	if nameSet && ptSet {
		return nil, errors.Errorf("%s: Depends.name and Depends.productTypes are mutually exclusive", item.Location())
	}

	subModules, _, err := ev.StringList(ctx, item, "submodules", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.submodules", item.Location())
	}
	if len(subModules) > 1 && item.ID() != "" {
		return nil, errors.Errorf("%s: Depends with more than one submodule cannot declare an id", item.Location())
	}

	muxIDs, _, err := ev.StringList(ctx, item, "multiplexConfigurationIds", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.multiplexConfigurationIds", item.Location())
	}
	profiles, profilesSet, err := ev.StringList(ctx, item, "profiles", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.profiles", item.Location())
	}

	atLeast, _, err := ev.String(ctx, item, "versionAtLeast", "")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.versionAtLeast", item.Location())
	}
	below, _, err := ev.String(ctx, item, "versionBelow", "")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.versionBelow", item.Location())
	}
	vc, err := NewVersionConstraint(atLeast, below)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", item.Location())
	}

	limitToSubProject, _, err := ev.String(ctx, item, "limitToSubProject", "")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.limitToSubProject", item.Location())
	}
	required, _, err := ev.Bool(ctx, item, "required", true)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.required", item.Location())
	}
	enableFallback, _, err := ev.Bool(ctx, item, "enableFallback", false)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate Depends.enableFallback", item.Location())
	}

	if name == "" && !ptSet {
		return nil, errors.Errorf("%s: Depends must set either name or productTypes", item.Location())
	}

	return &evaluatedDepends{
		item:                      item,
		Name:                      name,
		SubModules:                subModules,
		ProductTypes:              productTypes,
		MultiplexConfigurationIDs: muxIDs,
		Profiles:                  profiles,
		ProfilesSet:               profilesSet,
		VersionRange:              vc,
		LimitToSubProject:         limitToSubProject,
		Required:                  required,
		EnableFallback:            enableFallback,
		Parameters:                collectParametersSubtree(item),
	}, nil
}

// collectParametersSubtree reads a Depends' `parameters` item-typed child
// into a plain variant map (spec §4.I).
func collectParametersSubtree(item *Item) map[string]Value {
	v, ok := item.OwnProperty("parameters")
	if !ok {
		return nil
	}
	iv, ok := v.(*ItemValue)
	if !ok || iv.Item == nil {
		return nil
	}
	out := make(map[string]Value)
	for _, name := range iv.Item.PropertyNames() {
		pv, _ := iv.Item.OwnProperty(name)
		out[name] = pv
	}
	return out
}

// applyMultiplexAdjustmentForDependingProduct injects
// multiplexConfigurationIds onto ed so that, when the depending product is
// itself multiplexed, dependencies resolve to the matching variant (spec
// §4.I step 4 "apply multiplex adjustment for the depending product").
func applyMultiplexAdjustmentForDependingProduct(pc *ProductContext, ed *evaluatedDepends) {
	if pc.MultiplexConfigID == "" || len(ed.MultiplexConfigurationIDs) > 0 {
		return
	}
	ed.MultiplexConfigurationIDs = []string{pc.MultiplexConfigID}
}

// multiplexDepends implements the multiplex-adjustment decision table and
// the "multiplexing a single Depends" cross-product rule (spec §4.I).
func multiplexDepends(tlp *TopLevelProject, pc *ProductContext, ed *evaluatedDepends) ([]*resolvedDependency, error) {
	if len(ed.ProductTypes) > 0 {
		return multiplexByProductTypes(tlp, pc, ed)
	}

	target, ok := tlp.ProductByName(ed.Name)
	isProductDep := ok && target != nil
	dependencyMultiplexed := isProductDep && len(target.AggregateSiblings) > 0
	productMultiplexed := pc.MultiplexConfigID != ""

	switch {
	case isProductDep && dependencyMultiplexed && productMultiplexed && !ed.ProfilesSet:
		return pickSubsetVariant(pc, ed, target)
	case isProductDep && dependencyMultiplexed && productMultiplexed && ed.ProfilesSet:
		return allProfileMatchingVariants(ed, target)
	case isProductDep && dependencyMultiplexed && !productMultiplexed && !ed.ProfilesSet && target.IsAggregator:
		return []*resolvedDependency{{via: ed, TargetProductName: target.Name, Required: ed.Required}}, nil
	case isProductDep && dependencyMultiplexed && !productMultiplexed && !ed.ProfilesSet && !target.IsAggregator:
		return allVariants(ed, target)
	case isProductDep && dependencyMultiplexed && ed.ProfilesSet:
		return allProfileMatchingVariants(ed, target)
	default:
		return crossProductDepends(ed), nil
	}
}

func pickSubsetVariant(pc *ProductContext, ed *evaluatedDepends, target *ProductContext) ([]*resolvedDependency, error) {
	var matches []*ProductContext
candidates:
	for _, v := range append(target.AggregateSiblings, target) {
		if v.Disabled || v.IsAggregator {
			continue
		}
		for axis, val := range v.MultiplexAxes {
			if pc.MultiplexAxes[axis] != val {
				continue candidates
			}
		}
		matches = append(matches, v)
	}
	if len(matches) == 0 {
		return nil, &multiplexResolutionError{name: ed.Name, zero: true}
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.MultiplexConfigID
		}
		return nil, &multiplexResolutionError{name: ed.Name, candidates: names}
	}
	return []*resolvedDependency{{via: ed, TargetProductName: ed.Name, MultiplexConfigID: matches[0].MultiplexConfigID, Required: ed.Required}}, nil
}

func allProfileMatchingVariants(ed *evaluatedDepends, target *ProductContext) ([]*resolvedDependency, error) {
	var out []*resolvedDependency
	for _, v := range append(target.AggregateSiblings, target) {
		if v.Disabled || !profileInList(v.Profile, ed.Profiles) {
			continue
		}
		out = append(out, &resolvedDependency{via: ed, TargetProductName: ed.Name, MultiplexConfigID: v.MultiplexConfigID, Required: ed.Required})
	}
	if len(out) == 0 && ed.Required {
		return nil, &multiplexResolutionError{name: ed.Name, zero: true}
	}
	return out, nil
}

func allVariants(ed *evaluatedDepends, target *ProductContext) ([]*resolvedDependency, error) {
	var out []*resolvedDependency
	for _, v := range append(target.AggregateSiblings, target) {
		if v.Disabled {
			continue
		}
		out = append(out, &resolvedDependency{via: ed, TargetProductName: ed.Name, MultiplexConfigID: v.MultiplexConfigID, Required: ed.Required})
	}
	return out, nil
}

func profileInList(profile string, list []string) bool {
	for _, p := range list {
		if p == profile {
			return true
		}
	}
	return false
}

// crossProductDepends expands profiles x multiplexIds x submodules into
// one resolvedDependency each, with empty axes replaced by a single blank
// sentinel (spec §4.I "Multiplexing a single Depends").
func crossProductDepends(ed *evaluatedDepends) []*resolvedDependency {
	profiles := ed.Profiles
	if len(profiles) == 0 {
		profiles = []string{""}
	}
	ids := ed.MultiplexConfigurationIDs
	if len(ids) == 0 {
		ids = []string{""}
	}
	subs := ed.SubModules
	if len(subs) == 0 {
		subs = []string{""}
	}
	var out []*resolvedDependency
	for range profiles {
		for _, id := range ids {
			for _, sm := range subs {
				out = append(out, &resolvedDependency{
					via:               ed,
					ModuleName:        ed.Name,
					SubModule:         sm,
					MultiplexConfigID: id,
					Required:          ed.Required,
				})
			}
		}
	}
	return out
}

// multiplexByProductTypes resolves a Depends naming productTypes to every
// matching registered product, excluding the depending product itself
// (spec §4.I).
func multiplexByProductTypes(tlp *TopLevelProject, pc *ProductContext, ed *evaluatedDepends) ([]*resolvedDependency, error) {
	seen := map[string]bool{}
	var out []*resolvedDependency
	for _, t := range ed.ProductTypes {
		for _, cand := range tlp.ProductsByType(t) {
			if cand.Name == pc.Name || seen[cand.Name] {
				continue
			}
			seen[cand.Name] = true
			out = append(out, &resolvedDependency{via: ed, TargetProductName: cand.Name, MultiplexConfigID: cand.MultiplexConfigID, Required: ed.Required})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetProductName < out[j].TargetProductName })
	return out, nil
}

// materializeDependency asks the Module Loader/Instantiator (or the
// products-by-name index, for a product dependency) to turn a
// resolvedDependency into a loaded item, returning (item, defer, err).
func materializeDependency(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, frame *DependencyFrame, rd *resolvedDependency) (*Item, bool, error) {
	if rd.TargetProductName != "" {
		target, ok := tlp.ProductByName(rd.TargetProductName)
		if !ok {
			if rd.Required {
				return nil, false, &missingDependencyError{requester: pc.Name, name: rd.TargetProductName, loc: rd.via.item.Location()}
			}
			return nil, false, nil
		}
		if !target.dependenciesResolved {
			return nil, true, nil
		}
		if target.Disabled {
			if rd.Required {
				return nil, false, &disabledDependencyError{requester: pc.Name, dependsOn: rd.TargetProductName}
			}
			return nil, false, nil
		}
		return instantiateProductModule(tlp, pc, target, rd)
	}

	return loadAndInstantiateModule(ctx, tlp, pc, frame, rd)
}

// MultiplexConfigIDFromAxes encodes a multiplex axis map as the
// base64-JSON identifier spec §3/§4.L describe, and registers it in
// tlp's decode cache.
func MultiplexConfigIDFromAxes(tlp *TopLevelProject, axes map[string]string) (string, error) {
	if len(axes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(axes)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode multiplex configuration id")
	}
	id := base64.StdEncoding.EncodeToString(data)
	tlp.mu.Lock()
	tlp.multiplexIDCache[id] = axes
	tlp.mu.Unlock()
	return id, nil
}

// DecodeMultiplexConfigID is the inverse of MultiplexConfigIDFromAxes.
func DecodeMultiplexConfigID(tlp *TopLevelProject, id string) (map[string]string, bool) {
	if id == "" {
		return nil, true
	}
	tlp.mu.RLock()
	axes, ok := tlp.multiplexIDCache[id]
	tlp.mu.RUnlock()
	return axes, ok
}
