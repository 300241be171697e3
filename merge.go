package loader

import (
	"sort"

	"github.com/pkg/errors"
)

// mergeCandidate is one contribution to a property's final value, kept
// around after local merge so final merge can re-pick the winner (spec
// §4.H "the other is appended to the head's candidates list").
type mergeCandidate struct {
	value    Value
	priority int
}

// propertyMergeState is the side-table the Property Merger keeps per
// (item, property) to track every contribution seen so far, independent
// of which one is currently installed as the item's own property value.
type propertyMergeState struct {
	candidates []mergeCandidate
}

// mergeStates lives on the TopLevelProject in spirit, but per spec §4.A
// items don't carry extra fields beyond what's modeled; this loader keeps
// the table keyed by item pointer + property name in a side table owned
// by each ProductContext (ProductContext.MergeTable), mirroring how reference/gps-core/bridge.go keeps a
// side cache rather than growing the core graph type.
type mergeTable struct {
	states map[*Item]map[string]*propertyMergeState
}

func newMergeTable() *mergeTable {
	return &mergeTable{states: make(map[*Item]map[string]*propertyMergeState)}
}

func (mt *mergeTable) stateFor(it *Item, name string) *propertyMergeState {
	byName, ok := mt.states[it]
	if !ok {
		byName = make(map[string]*propertyMergeState)
		mt.states[it] = byName
	}
	st, ok := byName[name]
	if !ok {
		st = &propertyMergeState{}
		byName[name] = st
	}
	return st
}

// mergeLocalProperty implements spec §4.H "Local merge" for one property
// contribution arriving on target (typically a just-bound module
// instance, from its erstwhile placeholder). The contribution is recorded
// into mt regardless of whether it wins locally, so Final merge
// (finalMergeProduct) can re-pick the true winner later across every
// contribution this property ever received, not just the locally-installed
// one. mt may be nil (e.g. in tests exercising local merge in isolation),
// in which case only the local pick happens.
func mergeLocalProperty(mt *mergeTable, target *Item, name string, incoming Value) error {
	if decl, ok := target.Declaration(name); ok && decl.Flags&PropertyReadOnly != 0 {
		return &readOnlyPropertyError{module: target.ID(), property: name, loc: incoming.Loc()}
	}

	if mt != nil {
		recordMergeCandidate(mt, target, name, incoming)
	}

	existing, hasExisting := target.OwnProperty(name)
	if !hasExisting {
		target.SetProperty(name, incoming)
		return nil
	}

	decl, hasDecl := target.Declaration(name)
	if hasDecl && decl.Flags&PropertyList != 0 {
		target.SetProperty(name, spliceListByPriority(existing, incoming))
		return nil
	}

	if incoming.Priority() > existing.Priority() || isImmovableAnchor(incoming) {
		target.SetProperty(name, incoming)
	}
	return nil
}

// spliceListByPriority inserts incoming into existing's `next` chain
// ordered by descending priority (spec §4.H "list property").
func spliceListByPriority(existing, incoming Value) Value {
	head, ok := existing.(*SourceValue)
	inc, incOK := incoming.(*SourceValue)
	if !ok || !incOK {
		// Non-SourceValue list contributions (e.g. VariantValue lists from
		// profile injection) carry no `next` chain to splice, so the
		// incoming value replaces the existing one as a whole.
		return incoming
	}
	if inc.Expired() {
		return head
	}
	if inc.Priority() >= head.Priority() {
		inc.Next = head
		return inc
	}
	cur := head
	for cur.Next != nil && cur.Next.Priority() > inc.Priority() {
		cur = cur.Next
	}
	inc.Next = cur.Next
	cur.Next = inc
	return head
}

// isImmovableAnchor reports whether v is immune to being displaced by a
// lower-priority JS-source value (spec §4.H "Values flagged setInternally
// or setByCommandLine are immune...").
func isImmovableAnchor(v Value) bool {
	sv, ok := v.(*SourceValue)
	if !ok {
		return false
	}
	return sv.HasFlag(FlagSetInternally) || sv.HasFlag(FlagSetByCommandLine)
}

// recordMergeCandidate tracks a contribution for later final-merge
// re-evaluation (spec §4.H).
func recordMergeCandidate(mt *mergeTable, it *Item, name string, v Value) {
	st := mt.stateFor(it, name)
	st.candidates = append(st.candidates, mergeCandidate{value: v, priority: v.Priority()})
}

// finalMergeProduct implements spec §4.H "Final merge": run once per
// product after all modules have attached and validated. Re-picks the
// highest-priority candidate for each tracked property, purges evaluator
// caches for changed properties, and erases contributions from pruned
// instances.
func finalMergeProduct(tlp *TopLevelProject, pc *ProductContext, mt *mergeTable, pruned map[*Item]bool) error {
	for it, byName := range mt.states {
		if pruned[it] {
			continue
		}
		for name, st := range byName {
			if len(st.candidates) == 0 {
				continue
			}
			live := st.candidates[:0]
			for _, c := range st.candidates {
				if c.value.Expired() {
					continue
				}
				live = append(live, c)
			}
			if len(live) == 0 {
				continue
			}
			winner, warn, err := pickFinalWinner(live)
			if err != nil {
				return err
			}
			if warn != "" {
				tlp.Log.Logln("warning:", warn)
			}
			prior, hadPrior := it.OwnProperty(name)
			it.SetProperty(name, winner.value)
			if hadPrior && prior != winner.value {
				tlp.Evaluator.ClearItemCache(it)
			}
		}
	}
	return nil
}

// pickFinalWinner implements the tie-break rule from spec §4.H: highest
// priority; identical source text among ties is equivalent; otherwise the
// first one (by encounter order) wins with a warning listing the others.
func pickFinalWinner(candidates []mergeCandidate) (mergeCandidate, string, error) {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
	top := candidates[0].priority
	var tied []mergeCandidate
	for _, c := range candidates {
		if c.priority == top {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return tied[0], "", nil
	}
	if allEquivalent(tied) {
		return tied[0], "", nil
	}
	locs := make([]string, len(tied))
	for i, c := range tied {
		locs[i] = c.value.Loc().String()
	}
	warn := "conflicting property values at equal priority: " + joinChain(locs)
	return tied[0], warn, nil
}

func allEquivalent(candidates []mergeCandidate) bool {
	first, ok := candidates[0].value.(*SourceValue)
	if !ok {
		return false
	}
	for _, c := range candidates[1:] {
		sv, ok := c.value.(*SourceValue)
		if !ok || sv.Source != first.Source {
			return false
		}
	}
	return true
}

// erasePrunedContributions implements the final step of spec §4.H: after
// final merge, every instance known to be pruned has its contributions
// erased everywhere they were recorded.
func erasePrunedContributions(mt *mergeTable, pruned map[*Item]bool) {
	for it := range pruned {
		delete(mt.states, it)
	}
}

// priorityForDepth derives a merge priority from a module's dependency
// depth, broken by scope name (spec §4.H "Priority"): deeper chains win,
// and within one depth the sum of the scope name's code points (mod 1000)
// orders the values, so the ordering is deterministic across runs. Names
// with the same code-point sum, such as anagrams, get the same priority.
func priorityForDepth(depth int, scopeName string) int {
	base := depth * 1000
	sum := 0
	for _, r := range scopeName {
		sum += int(r)
	}
	return base + sum%1000
}

var errNoCandidates = errors.New("no live merge candidates")
