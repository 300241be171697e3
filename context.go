package loader

import (
	"sync"
	"sync/atomic"

	"github.com/qbs-loader/loader/internal/guidpool"
	"github.com/qbs-loader/loader/internal/loglib"
	"github.com/qbs-loader/loader/internal/probecache"
	"github.com/qbs-loader/loader/internal/trie"
)

// ProjectContext holds one level of the project tree (spec §3). Grounded
// on reference/gps-core/rootdata.go's per-level bundle of static data.
type ProjectContext struct {
	Name   string
	Root   *Item
	Scope  *Item
	Parent *ProjectContext

	Products []*ProductContext

	// extraSearchPaths is a per-level stack of additional search paths a
	// subproject contributes (spec §3).
	extraSearchPaths [][]string
}

// PushExtraSearchPaths pushes a new frame of extra search paths, most
// recently pushed taking priority.
func (pc *ProjectContext) PushExtraSearchPaths(paths []string) {
	pc.extraSearchPaths = append(pc.extraSearchPaths, paths)
}

// PopExtraSearchPaths removes the most recently pushed frame.
func (pc *ProjectContext) PopExtraSearchPaths() {
	if len(pc.extraSearchPaths) > 0 {
		pc.extraSearchPaths = pc.extraSearchPaths[:len(pc.extraSearchPaths)-1]
	}
}

// DependencyFrame is one stack entry in a product's dependency-resolution
// state machine (spec §4.I).
type DependencyFrame struct {
	// LoadingItem is the product or module item currently being entered.
	LoadingItem *Item
	// ViaDepends is the Depends item that got us here (nil for the root
	// frame).
	ViaDepends *Item

	PendingDepends []*Item // FIFO of Depends items not yet evaluated

	// CurrentDepends is the evaluated-but-not-yet-multiplexed Depends, if
	// any is in flight.
	CurrentDepends *evaluatedDepends

	ResolvedDepends []*resolvedDependency // FIFO of fully multiplexed records
}

// ProductContext holds everything the loader tracks for one (possibly
// multiplexed) product (spec §3).
type ProductContext struct {
	Name                string
	MultiplexConfigID   string
	Item                *Item
	Project             *ProjectContext
	TopLevel            *TopLevelProject

	// ExportItem is the merged "product module" (spec §3, §4.L).
	ExportItem *Item

	Profile string

	// ProfileModuleTree holds profile-origin-only values; ResolvedModuleTree
	// holds profile+override merged values (spec §3).
	ProfileModuleTree   map[string]map[string]Value
	ResolvedModuleTree  map[string]map[string]Value

	DefaultExportParameters map[string]Value

	SearchPaths []string

	dependenciesResolved bool
	frames               []*DependencyFrame

	// mergeTable accumulates every local-merge contribution recorded while
	// this product's modules attach, so the Final merge pass (merge.go) can
	// re-evaluate the whole set once resolution completes (spec §4.H).
	mergeTable *mergeTable

	mu     sync.Mutex
	errors []error

	Disabled bool
	Enabled  bool

	Probes []*ProbeRecord

	// Aggregator/multiplex bookkeeping (spec §4.K).
	MultiplexAxes     map[string]string
	IsAggregator      bool
	AggregateSiblings []*ProductContext

	resolvedProduct *ResolvedProduct
}

// MergeTable returns this product's per-load merge contribution table,
// creating it on first use.
func (pc *ProductContext) MergeTable() *mergeTable {
	if pc.mergeTable == nil {
		pc.mergeTable = newMergeTable()
	}
	return pc.mergeTable
}

// Resolved returns the frozen Product Resolver output for this product,
// or nil if the product hasn't reached that stage (e.g. it errored out
// earlier).
func (pc *ProductContext) Resolved() *ResolvedProduct { return pc.resolvedProduct }

// PushFrame pushes a new dependency-resolution frame.
func (pc *ProductContext) PushFrame(f *DependencyFrame) {
	pc.frames = append(pc.frames, f)
}

// TopFrame returns the current (innermost) frame, or nil if the stack is
// empty.
func (pc *ProductContext) TopFrame() *DependencyFrame {
	if len(pc.frames) == 0 {
		return nil
	}
	return pc.frames[len(pc.frames)-1]
}

// PopFrame removes the innermost frame.
func (pc *ProductContext) PopFrame() {
	if len(pc.frames) > 0 {
		pc.frames = pc.frames[:len(pc.frames)-1]
	}
}

// FrameDepth reports how many frames are currently on the stack (used for
// cycle detection: the loading item reappearing anywhere in this stack is
// a cycle).
func (pc *ProductContext) FrameDepth() int { return len(pc.frames) }

// IsLoadingItem reports whether it appears anywhere on the current frame
// stack as a LoadingItem (spec §4.I cycle detection).
func (pc *ProductContext) IsLoadingItem(it *Item) (depth int, found bool) {
	for i, f := range pc.frames {
		if f.LoadingItem == it {
			return i, true
		}
	}
	return 0, false
}

// recordError appends a delayed error for this product. Per spec §7,
// internal errors are de-duplicated: only the first internalError per
// product is kept.
func (pc *ProductContext) recordError(err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, isInternal := err.(*internalError); isInternal {
		for _, e := range pc.errors {
			if _, already := e.(*internalError); already {
				return
			}
		}
	}
	pc.errors = append(pc.errors, err)
	pc.Disabled = true
}

// Errors returns the product's accumulated delayed errors.
func (pc *ProductContext) Errors() []error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make([]error, len(pc.errors))
	copy(out, pc.errors)
	return out
}

// TopLevelProject owns the whole load: every ProjectContext, and the
// thread-safe indexes/caches shared across the load (spec §3). Grounded on
// reference/gps-core/source_manager.go's SourceMgr: one owning struct with
// several independently-locked maps, plus a poolOfPools and cancellation
// flag in the same spirit as SourceMgr's qch/glock.
type TopLevelProject struct {
	Params SetupProjectParameters
	Log    *loglib.Logger

	Evaluator  Evaluator
	ItemReader ItemReader
	Profiles   Profiles
	ProbeCache *probecache.Cache
	GuidPool   *guidpool.Pool

	projects []*ProjectContext

	mu               sync.RWMutex
	productsByName   map[string]*ProductContext
	productsByType   map[string][]*ProductContext
	disabledItems    map[*Item]struct{}
	erroneousNames   map[string]struct{}

	probes []*ProbeRecord

	multiplexIDCache map[string]map[string]string // id -> axis map, decode support

	prototypeCache map[string]*Item // (filePath + "\x00" + profile) -> prototype

	providerCache map[string][]string // provider cache key -> search paths

	// moduleConditionCache holds the per-(prototype, product) condition
	// decision (spec §4.F "a per-(prototype, product) decision caches
	// whether the module's condition is true"), since the same shared
	// prototype can be condition-checked from more than one product.
	moduleConditionCache map[moduleConditionKey]bool

	// providerTrie indexes resolved Scoped module-provider lookups by their
	// dotted-segment prefix, so repeated suffix probes for related module
	// names (spec §4.E "Scoped" mode tries every suffix) reuse the most
	// specific match already found this load instead of re-reading files.
	providerTrie trie.Trie

	pools *poolOfPools

	shadowProducts []*ProductContext

	queue []*ProductContext

	cancelled int32
}

// NewTopLevelProject constructs an empty TopLevelProject ready to start a
// load.
func NewTopLevelProject(params SetupProjectParameters, ev Evaluator, ir ItemReader, pf Profiles, pc *probecache.Cache, gp *guidpool.Pool, log *loglib.Logger) *TopLevelProject {
	return &TopLevelProject{
		Params:           params,
		Log:              log,
		Evaluator:        ev,
		ItemReader:       ir,
		Profiles:         pf,
		ProbeCache:       pc,
		GuidPool:         gp,
		productsByName:   make(map[string]*ProductContext),
		productsByType:   make(map[string][]*ProductContext),
		disabledItems:    make(map[*Item]struct{}),
		erroneousNames:   make(map[string]struct{}),
		multiplexIDCache: make(map[string]map[string]string),
		prototypeCache:   make(map[string]*Item),
		providerCache:    make(map[string][]string),
		moduleConditionCache: make(map[moduleConditionKey]bool),
		providerTrie:     trie.New(),
		pools:            newPoolOfPools(),
	}
}

// NewPool hands out a fresh ItemPool owned by this project.
func (tlp *TopLevelProject) NewPool() *ItemPool { return tlp.pools.New() }

// moduleConditionKey identifies one module prototype's condition decision
// as seen from one product (spec §4.F).
type moduleConditionKey struct {
	proto *Item
	pc    *ProductContext
}

// cachedModuleCondition returns a previously recorded (proto, pc) condition
// decision, if any.
func (tlp *TopLevelProject) cachedModuleCondition(proto *Item, pc *ProductContext) (bool, bool) {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	v, ok := tlp.moduleConditionCache[moduleConditionKey{proto: proto, pc: pc}]
	return v, ok
}

// recordModuleCondition stores a (proto, pc) condition decision.
func (tlp *TopLevelProject) recordModuleCondition(proto *Item, pc *ProductContext, holds bool) {
	tlp.mu.Lock()
	defer tlp.mu.Unlock()
	tlp.moduleConditionCache[moduleConditionKey{proto: proto, pc: pc}] = holds
}

// RegisterProduct makes a finished, enabled product visible to the rest of
// the load: by name and by every type tag it carries (spec §3 invariant:
// "A product is in productsByType only after it is error-free and
// enabled").
func (tlp *TopLevelProject) RegisterProduct(pc *ProductContext, typeTags []string) {
	tlp.mu.Lock()
	defer tlp.mu.Unlock()
	tlp.productsByName[pc.Name] = pc
	if pc.Disabled || !pc.Enabled {
		return
	}
	for _, t := range typeTags {
		tlp.productsByType[t] = append(tlp.productsByType[t], pc)
	}
}

// ProductByName looks up a registered product by its unique name.
func (tlp *TopLevelProject) ProductByName(name string) (*ProductContext, bool) {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	pc, ok := tlp.productsByName[name]
	return pc, ok
}

// ProductsByType returns every enabled product carrying the given type
// tag.
func (tlp *TopLevelProject) ProductsByType(t string) []*ProductContext {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	return append([]*ProductContext(nil), tlp.productsByType[t]...)
}

// MarkErroneous records a product name as having a fatal error, for
// end-of-load reporting.
func (tlp *TopLevelProject) MarkErroneous(name string) {
	tlp.mu.Lock()
	defer tlp.mu.Unlock()
	tlp.erroneousNames[name] = struct{}{}
}

// ErroneousProductNames returns the names of every product that hit a
// fatal error during the load.
func (tlp *TopLevelProject) ErroneousProductNames() []string {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	out := make([]string, 0, len(tlp.erroneousNames))
	for n := range tlp.erroneousNames {
		out = append(out, n)
	}
	return out
}

// MarkDisabled records that item was disabled (e.g. a pruned cyclic
// branch, or a Group under a disabled ancestor).
func (tlp *TopLevelProject) MarkDisabled(it *Item) {
	tlp.mu.Lock()
	defer tlp.mu.Unlock()
	tlp.disabledItems[it] = struct{}{}
}

// IsDisabled reports whether item was previously marked disabled.
func (tlp *TopLevelProject) IsDisabled(it *Item) bool {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	_, ok := tlp.disabledItems[it]
	return ok
}

// AddShadowProduct registers a product-export shadow, resolved separately
// from the main scheduling queue (spec §4.L, §4.M "export-setup pass").
func (tlp *TopLevelProject) AddShadowProduct(pc *ProductContext) {
	tlp.mu.Lock()
	defer tlp.mu.Unlock()
	tlp.shadowProducts = append(tlp.shadowProducts, pc)
}

// ShadowProducts returns every registered shadow product.
func (tlp *TopLevelProject) ShadowProducts() []*ProductContext {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	return append([]*ProductContext(nil), tlp.shadowProducts...)
}

// AddProbe records a probe result for cross-component visibility (the
// Product Resolver surfaces these in its resolved output, spec §4.N).
func (tlp *TopLevelProject) AddProbe(p *ProbeRecord) {
	tlp.mu.Lock()
	defer tlp.mu.Unlock()
	tlp.probes = append(tlp.probes, p)
}

// Probes returns every probe run or reused during the load.
func (tlp *TopLevelProject) Probes() []*ProbeRecord {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	return append([]*ProbeRecord(nil), tlp.probes...)
}

// Cancel requests cooperative cancellation; observed between products and
// at other defined checkpoints (spec §5).
func (tlp *TopLevelProject) Cancel() { atomic.StoreInt32(&tlp.cancelled, 1) }

// Cancelled reports whether Cancel has been called.
func (tlp *TopLevelProject) Cancelled() bool { return atomic.LoadInt32(&tlp.cancelled) != 0 }

// checkCancelled panics with cancelError if cancellation was requested;
// paired with a recover() at the top-level Load() call, mirroring the
// exception-style cancellation spec §5/§7 describe, translated into Go's
// idiom of panic/recover confined to one function boundary.
func (tlp *TopLevelProject) checkCancelled() {
	if tlp.Cancelled() {
		panic(cancelError{})
	}
}
