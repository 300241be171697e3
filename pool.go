package loader

import "sync"

// ItemPool is an arena allocator for Items (spec §4.A). Every Item created
// via a given pool belongs to that pool for its entire lifetime; the pool
// is destroyed as a whole and individual items are never freed one at a
// time. This mirrors the teacher's general ownership discipline of one
// container owning a set of otherwise-unowned cross-referencing nodes
// (compare solver.go's `sel`/`unsel`/`vqs`, each owning its elements
// outright while those elements hold raw pointers to each other).
type ItemPool struct {
	mu    sync.Mutex
	items []*Item
}

// NewItemPool creates an empty pool.
func NewItemPool() *ItemPool {
	return &ItemPool{}
}

// NewItem allocates a new Item of the given type, owned by this pool.
func (p *ItemPool) NewItem(t ItemType, loc Location) *Item {
	it := &Item{
		itemType: t,
		location: loc,
		pool:     p,
	}
	p.mu.Lock()
	p.items = append(p.items, it)
	p.mu.Unlock()
	return it
}

// Clone deep-copies an item's own properties (not its children) into a new
// item owned by the same pool. The clone's prototype is pointed at the
// original so that inherited property declarations remain reachable
// (spec §4.A: "Cloning of a module item re-points its prototype to the
// original so parameter declarations remain accessible").
func (p *ItemPool) Clone(src *Item) *Item {
	dst := p.NewItem(src.itemType, src.location)
	dst.id = src.id
	dst.prototype = src
	dst.scope = src.scope
	dst.parent = src.parent

	if len(src.propMap) > 0 {
		dst.propMap = make(map[string]Value, len(src.propMap))
		for k, v := range src.propMap {
			dst.propMap[k] = v
		}
	}
	if len(src.declMap) > 0 {
		dst.declMap = make(map[string]*PropertyDeclaration, len(src.declMap))
		for k, v := range src.declMap {
			dst.declMap[k] = v
		}
	}
	if len(src.propertyOptions) > 0 {
		dst.propertyOptions = make(map[string]*PropertyOptions, len(src.propertyOptions))
		for k, v := range src.propertyOptions {
			dst.propertyOptions[k] = v
		}
	}
	return dst
}

// CloneWithChildren is Clone, but additionally clones the children
// subtree (used by instantiate.go's instantiateProductModule, which needs
// an independent copy of a product's Export subtree to bind as a module
// instance).
func (p *ItemPool) CloneWithChildren(src *Item) *Item {
	dst := p.Clone(src)
	for _, c := range src.children {
		cc := p.CloneWithChildren(c)
		dst.AddChild(cc)
	}
	return dst
}

// Len reports how many items this pool has allocated, for diagnostics and
// tests.
func (p *ItemPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// poolOfPools lets the top-level project hand out one ItemPool per
// sub-load (e.g. per module-provider invocation) while keeping a single
// place that owns all of them, mirroring the teacher's "item-pool-of-pools"
// cache named in spec §5.
type poolOfPools struct {
	mu    sync.Mutex
	pools []*ItemPool
}

func newPoolOfPools() *poolOfPools {
	return &poolOfPools{}
}

func (pp *poolOfPools) New() *ItemPool {
	p := NewItemPool()
	pp.mu.Lock()
	pp.pools = append(pp.pools, p)
	pp.mu.Unlock()
	return p
}
