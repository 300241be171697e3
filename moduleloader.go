package loader

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// prototypeCacheKey identifies one loaded-and-specialized module prototype
// (spec §4.F "a prototype cache maps this key to a single
// parsed-and-specialized item").
type prototypeCacheKey struct {
	filePath string
	profile  string
}

// candidateModule is one build-language file on a search path that parsed
// as a Module item for the requested qualified name.
type candidateModule struct {
	filePath      string
	searchPathIdx int
	priority      int
	item          *Item
}

// loadAndInstantiateModule implements the Module Loader (spec §4.F) plus
// the Module Instantiator (spec §4.G) for one resolvedDependency whose
// target is a disk module rather than a product.
func loadAndInstantiateModule(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, frame *DependencyFrame, rd *resolvedDependency) (*Item, bool, error) {
	name := rd.ModuleName
	if name == "" {
		return nil, false, &internalError{msg: "resolvedDependency with no module name and no target product"}
	}

	if name == "qbs" {
		return instantiateBaseModule(tlp, pc, frame.LoadingItem, rd)
	}

	proto, err := findOrLoadModulePrototype(ctx, tlp, pc, name)
	if err != nil {
		return nil, false, err
	}
	if proto == nil {
		proto, err = tryModuleProviders(ctx, tlp, pc, name)
		if err != nil {
			return nil, false, err
		}
	}
	if proto == nil {
		if rd.Required {
			return nil, false, &missingDependencyError{requester: pc.Name, name: name, loc: loadingItemLocation(rd)}
		}
		return instantiateNonPresentModule(pc, frame.LoadingItem, name, "no module named "+name+" could be found on any search path")
	}

	if ok, err := moduleConditionHolds(ctx, tlp, pc, proto); err != nil {
		return nil, false, err
	} else if !ok {
		if rd.Required {
			return nil, false, &missingDependencyError{requester: pc.Name, name: name, loc: proto.Location(), filterInfo: "condition is false"}
		}
		return instantiateNonPresentModule(pc, frame.LoadingItem, name, "condition evaluated to false")
	}

	inst := instantiateModule(tlp, pc, frame.LoadingItem, name, proto, rd)
	return inst, false, nil
}

func loadingItemLocation(rd *resolvedDependency) Location {
	if rd.via != nil && rd.via.item != nil {
		return rd.via.item.Location()
	}
	return Location{}
}

// findOrLoadModulePrototype finds, parses and caches the module named by
// the dotted qualified name on every active search path (spec §4.F).
func findOrLoadModulePrototype(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, name string) (*Item, error) {
	profile := pc.Profile
	segments := strings.Split(name, ".")

	var candidates []candidateModule
	for spIdx, sp := range pc.SearchPaths {
		dir := filepath.Join(append([]string{sp, "modules"}, segments...)...)
		entries, err := tlp.ItemReader.FindDirectoryEntries(dir)
		if err != nil {
			continue
		}
		for _, f := range entries {
			key := prototypeCacheKey{filePath: f, profile: profile}
			tlp.mu.RLock()
			cached, ok := tlp.prototypeCache[key.filePath+"\x00"+key.profile]
			tlp.mu.RUnlock()
			if ok {
				if cached.Type() == TypeModule {
					candidates = append(candidates, candidateModule{filePath: f, searchPathIdx: spIdx, item: cached, priority: modulePriority(cached)})
				}
				continue
			}

			root, err := tlp.ItemReader.ReadFile(f)
			if err != nil {
				tlp.Log.Debugf("failed to parse candidate module file %s: %v", f, err)
				continue
			}
			if root.Type() != TypeModule {
				continue
			}
			specialized := specializeModulePrototype(tlp, pc, root, profile)
			tlp.mu.Lock()
			tlp.prototypeCache[f+"\x00"+profile] = specialized
			tlp.mu.Unlock()
			candidates = append(candidates, candidateModule{filePath: f, searchPathIdx: spIdx, item: specialized, priority: modulePriority(specialized)})
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	return pickHighestPriorityCandidate(name, candidates)
}

func modulePriority(it *Item) int {
	v, ok := it.OwnProperty("priority")
	if !ok {
		return 0
	}
	if vv, ok := v.(*VariantValue); ok {
		if n, ok := vv.Scalar.(int); ok {
			return n
		}
	}
	return 0
}

// pickHighestPriorityCandidate implements spec §4.F "Candidate selection":
// highest explicit priority wins, ties broken by later search-path index,
// more than one winner is an error.
func pickHighestPriorityCandidate(name string, candidates []candidateModule) (*Item, error) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].searchPathIdx > candidates[j].searchPathIdx
	})
	best := candidates[0]
	var tied []candidateModule
	for _, c := range candidates {
		if c.priority == best.priority && c.searchPathIdx == best.searchPathIdx {
			tied = append(tied, c)
		}
	}
	if len(tied) > 1 {
		paths := make([]string, len(tied))
		for i, c := range tied {
			paths[i] = c.filePath
		}
		return nil, errors.Errorf("more than one candidate for module %q at the same priority: %v", name, paths)
	}
	return best.item, nil
}

// specializeModulePrototype injects active-profile defaults onto a freshly
// parsed module prototype (spec §4.F "Profile injection").
func specializeModulePrototype(tlp *TopLevelProject, pc *ProductContext, proto *Item, profile string) *Item {
	tree := pc.ProfileModuleTree
	if tree == nil {
		return proto
	}
	modName := proto.ID()
	props, ok := tree[modName]
	if !ok {
		return proto
	}
	for prop, v := range props {
		if _, exists := proto.OwnProperty(prop); exists {
			continue
		}
		proto.SetProperty(prop, v)
	}
	return proto
}

// moduleConditionHolds evaluates whether a module's `condition` is true,
// temporarily attaching a `qbs` view so the condition may reference qbs.*
// properties, then reverting that attachment (spec §4.F "Condition
// gating"). proto is the shared, cross-product cached prototype, so the
// decision is cached per (proto, pc): other products sharing the same
// prototype re-check independently, and repeat checks for the same pair
// are served from cache rather than re-evaluated.
func moduleConditionHolds(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, proto *Item) (bool, error) {
	if cached, ok := tlp.cachedModuleCondition(proto, pc); ok {
		return cached, nil
	}

	prevScope := attachTemporaryQbsView(pc, proto)
	ok, _, err := tlp.Evaluator.Bool(ctx, proto, "condition", true)
	detachTemporaryQbsView(proto, prevScope)
	if err != nil {
		return false, errors.Wrapf(err, "%s: failed to evaluate module condition", proto.Location())
	}

	tlp.recordModuleCondition(proto, pc, ok)
	return ok, nil
}

func attachTemporaryQbsView(pc *ProductContext, proto *Item) *Item {
	prev := proto.Scope()
	if qbsMod, ok := pc.Item.ModuleNamed("qbs"); ok {
		proto.SetScope(qbsMod.Instance)
	}
	return prev
}

func detachTemporaryQbsView(proto *Item, prevScope *Item) {
	proto.SetScope(prevScope)
}
