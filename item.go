package loader

// ItemType is the closed set of node kinds in the item graph (spec §3).
type ItemType uint8

const (
	TypeInvalid ItemType = iota
	TypeProject
	TypeProduct
	TypeModule
	TypeModulePrefix
	TypeModuleInstance
	TypeModuleInstancePlaceholder
	TypeExport
	TypeDepends
	TypeGroup
	TypeArtifact
	TypeRule
	TypeFileTagger
	TypeJobLimit
	TypeScanner
	TypeProbe
	TypeParameters
	TypeModuleParameters
	TypePropertyOptions
	TypeScope
)

func (t ItemType) String() string {
	switch t {
	case TypeProject:
		return "Project"
	case TypeProduct:
		return "Product"
	case TypeModule:
		return "Module"
	case TypeModulePrefix:
		return "ModulePrefix"
	case TypeModuleInstance:
		return "ModuleInstance"
	case TypeModuleInstancePlaceholder:
		return "ModuleInstancePlaceholder"
	case TypeExport:
		return "Export"
	case TypeDepends:
		return "Depends"
	case TypeGroup:
		return "Group"
	case TypeArtifact:
		return "Artifact"
	case TypeRule:
		return "Rule"
	case TypeFileTagger:
		return "FileTagger"
	case TypeJobLimit:
		return "JobLimit"
	case TypeScanner:
		return "Scanner"
	case TypeProbe:
		return "Probe"
	case TypeParameters:
		return "Parameters"
	case TypeModuleParameters:
		return "ModuleParameters"
	case TypePropertyOptions:
		return "PropertyOptions"
	case TypeScope:
		return "Scope"
	default:
		return "Invalid"
	}
}

// PropertyDeclaration describes one named property an Item type carries:
// its value type, allowed values, default, and deprecation status. Modules
// loaded from disk contribute their own declarations (via `property` blocks
// in the source language); built-in item types carry a fixed set.
type PropertyDeclaration struct {
	Name          string
	ValueType     ValueKind
	Flags         PropertyFlags
	Default       Value
	AllowedValues []string
	// DeprecatedMessage is non-empty if reading this property should log a
	// one-time deprecation warning instead of failing outright. Supplements
	// spec.md per SPEC_FULL.md's original_source/ carry-forward.
	DeprecatedMessage string
}

// PropertyFlags are bit flags on a PropertyDeclaration.
type PropertyFlags uint8

const (
	PropertyReadOnly PropertyFlags = 1 << iota
	PropertyList
	PropertyRequired
)

// Module attaches a qualified module (loaded from disk or exported by a
// product) to the Item that depends on it (spec §3 "Module attachment").
type Module struct {
	Name string

	// Instance is the module's own instance item (a clone, never shared).
	Instance *Item

	// ProducingProduct is set when this module is a product-module export
	// rather than a disk-loaded module.
	ProducingProduct *ProductContext

	VersionRange VersionConstraint

	// LoadingItems back-reference every item that pulled this module in,
	// used for diagnostics and for final-merge pruning.
	LoadingItems []*Item

	Parameters map[string]Value

	Required bool

	// MaxDepth is the longest dependency chain reaching this module,
	// recomputed as the load proceeds; the Property Merger uses it to
	// break priority ties (spec §4.H).
	MaxDepth int

	// Present is false for a non-present module sentinel (spec §4.G).
	Present      bool
	AbsentReason string
}

// Item is a node in the project graph (spec §3). Items are owned
// exclusively by the ItemPool that created them; every pointer field below
// is a non-owning, weak back/cross-reference.
type Item struct {
	id        string
	itemType  ItemType
	location  Location
	declMap   map[string]*PropertyDeclaration
	propMap   map[string]Value
	prototype *Item
	scope     *Item
	parent    *Item
	children  []*Item
	modules   []*Module

	// propertyOptions holds side-table PropertyOptions entries keyed by
	// property name (console/uncached/removed markers; see SPEC_FULL.md
	// "Supplemented features").
	propertyOptions map[string]*PropertyOptions

	// deprecationWarned records which deprecated properties have already
	// produced a warning for this item, so repeated reads don't spam.
	deprecationWarned map[string]bool

	pool *ItemPool
}

// PropertyOptions models the side-channel `PropertyOptions` item the
// original source attaches next to a property assignment.
type PropertyOptions struct {
	Console  bool
	Uncached bool
	Removed  bool
}

// ID returns the item's declared id, which may be empty.
func (it *Item) ID() string { return it.id }

// Type returns the item's type tag.
func (it *Item) Type() ItemType { return it.itemType }

// Location returns the item's source location.
func (it *Item) Location() Location { return it.location }

// Parent returns the containing item, or nil for a root.
func (it *Item) Parent() *Item { return it.parent }

// Scope returns the item's name-resolution parent, which may differ from
// Parent for items synthesized with an explicit scope (e.g. module
// instances get a private Scope item; spec §4.G).
func (it *Item) Scope() *Item { return it.scope }

// SetScope rewires the item's name-resolution parent.
func (it *Item) SetScope(s *Item) { it.scope = s }

// Prototype returns the item this one inherits property declarations and
// unset properties from, or nil.
func (it *Item) Prototype() *Item { return it.prototype }

// SetPrototype rewires the inheritance chain.
func (it *Item) SetPrototype(p *Item) { it.prototype = p }

// Children returns the ordered list of contained items. The returned slice
// must not be mutated by callers; use AddChild.
func (it *Item) Children() []*Item { return it.children }

// AddChild appends c to it's children and sets c's parent back-reference.
func (it *Item) AddChild(c *Item) {
	c.parent = it
	it.children = append(it.children, c)
}

// Modules returns the list of modules attached to this item. By the time
// scheduling of the owning product completes, this list is sorted
// leaves-before-roots (spec §3 invariants, §5 ordering guarantees).
func (it *Item) Modules() []*Module { return it.modules }

// AttachModule appends a module record; callers are responsible for
// maintaining the topological ordering invariant at the end of product
// scheduling (see depends.go's reorderModuleToEnd).
func (it *Item) AttachModule(m *Module) {
	it.modules = append(it.modules, m)
}

// ModuleNamed returns the attached module with the given qualified name,
// if any.
func (it *Item) ModuleNamed(name string) (*Module, bool) {
	for _, m := range it.modules {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// SetType switches the item's type tag. Used exactly once by the Module
// Instantiator to turn a Module/Export item into a ModuleInstance
// (spec §4.G).
func (it *Item) SetType(t ItemType) { it.itemType = t }

// DeclareProperty records a property declaration, own to this item (not
// inherited). Overwrites any existing declaration of the same name.
func (it *Item) DeclareProperty(decl *PropertyDeclaration) {
	if it.declMap == nil {
		it.declMap = make(map[string]*PropertyDeclaration)
	}
	it.declMap[decl.Name] = decl
}

// OwnDeclaration looks up a property declaration on this item only, not
// following the prototype chain.
func (it *Item) OwnDeclaration(name string) (*PropertyDeclaration, bool) {
	d, ok := it.declMap[name]
	return d, ok
}

// Declaration performs a recursive lookup of a property declaration
// through the prototype chain (spec §4.A).
func (it *Item) Declaration(name string) (*PropertyDeclaration, bool) {
	for cur := it; cur != nil; cur = cur.prototype {
		if d, ok := cur.declMap[name]; ok {
			return d, true
		}
	}
	return nil, false
}

// SetProperty assigns a Value to a property name, own to this item. This
// is a raw set; it does not itself apply merge semantics (see merge.go).
func (it *Item) SetProperty(name string, v Value) {
	if it.propMap == nil {
		it.propMap = make(map[string]Value)
	}
	it.propMap[name] = v
}

// OwnProperty looks up a property value set directly on this item, without
// following the prototype chain.
func (it *Item) OwnProperty(name string) (Value, bool) {
	v, ok := it.propMap[name]
	return v, ok
}

// PropertyNames returns the set of property names assigned directly on
// this item (not through the prototype chain), in unspecified order.
func (it *Item) PropertyNames() []string {
	names := make([]string, 0, len(it.propMap))
	for n := range it.propMap {
		names = append(names, n)
	}
	return names
}

// SetPropertyOptions attaches a PropertyOptions side-record for name.
func (it *Item) SetPropertyOptions(name string, opts *PropertyOptions) {
	if it.propertyOptions == nil {
		it.propertyOptions = make(map[string]*PropertyOptions)
	}
	it.propertyOptions[name] = opts
}

// PropertyOptionsFor returns the PropertyOptions attached to name, if any.
func (it *Item) PropertyOptionsFor(name string) (*PropertyOptions, bool) {
	o, ok := it.propertyOptions[name]
	return o, ok
}

// markDeprecationWarned returns true if this is the first time name has
// been flagged deprecated on this item (and records that it has now).
func (it *Item) markDeprecationWarned(name string) bool {
	if it.deprecationWarned == nil {
		it.deprecationWarned = make(map[string]bool)
	}
	if it.deprecationWarned[name] {
		return false
	}
	it.deprecationWarned[name] = true
	return true
}
