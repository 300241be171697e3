package loader

// ValueKind tags the concrete representation of a Value (spec §3).
type ValueKind uint8

const (
	KindSource ValueKind = iota
	KindItem
	KindVariant
)

// Value is the tagged variant every property on an Item holds. Only one of
// the accessor methods below is meaningful for a given Value depending on
// its Kind.
type Value interface {
	Kind() ValueKind
	// Loc is the source location the value was assigned at, if any.
	Loc() Location
	// ScopeItem is the item providing name resolution for this value's
	// expression, if any (SourceValue only, but carried generically so
	// callers don't need a type switch just to ask).
	ScopeItem() *Item
	// Priority is the priority this value was attached with. Reset only
	// during final merge (spec §4.H).
	Priority() int
	SetPriority(int)
	// Expired reports whether this value should be suppressed in the
	// final merge because its guard condition is now false.
	Expired() bool
}

type baseValue struct {
	loc      Location
	scope    *Item
	priority int
	expired  bool
}

func (b *baseValue) Loc() Location    { return b.loc }
func (b *baseValue) ScopeItem() *Item { return b.scope }
func (b *baseValue) Priority() int    { return b.priority }
func (b *baseValue) SetPriority(p int) { b.priority = p }
func (b *baseValue) Expired() bool    { return b.expired }

// SourceValueFlags are the flags a SourceValue may carry (spec §3).
type SourceValueFlags uint8

const (
	FlagCreatedByPropertiesBlock SourceValueFlags = 1 << iota
	FlagSetInternally
	FlagSetByCommandLine
)

// SourceValue is an unevaluated expression captured from the project
// source, plus everything needed to evaluate and chain it: a base-value
// link for `outer`/super chaining, a `next` sibling for list construction,
// and a list of conditional alternatives (spec §3).
type SourceValue struct {
	baseValue

	// Source is the raw expression text, handed to the Evaluator.
	Source string

	// Base is the value this one's `outer` expression resolves to, if any
	// (i.e. the value this one shadows on the prototype/merge chain).
	Base Value

	// Next chains sibling contributions into a list; nil terminates.
	Next *SourceValue

	// Alternatives are conditional overrides of this value (a `Properties`
	// block guarded by a condition); evaluated in order, first true wins.
	Alternatives []ConditionalValue

	Flags SourceValueFlags
}

func (v *SourceValue) Kind() ValueKind { return KindSource }

func (v *SourceValue) HasFlag(f SourceValueFlags) bool { return v.Flags&f != 0 }

// ConditionalValue pairs a guard expression with the value to use when it
// evaluates true.
type ConditionalValue struct {
	Condition string
	Value     Value
}

// ItemValue is a handle to a child item, used to model nested
// property-as-item access (e.g. `cpp.defines` reaching into the `cpp`
// ModuleInstance item; spec §3).
type ItemValue struct {
	baseValue
	Item *Item
}

func (v *ItemValue) Kind() ValueKind { return KindItem }

// VariantValue is a pre-computed scalar or list value: profile defaults,
// command-line overrides, probe results, and built-in injected properties
// all arrive this way (spec §3).
type VariantValue struct {
	baseValue
	Scalar interface{}
	List   []interface{}
	IsList bool
}

func (v *VariantValue) Kind() ValueKind { return KindVariant }

// NewVariantScalar builds a VariantValue holding a single scalar.
func NewVariantScalar(x interface{}) *VariantValue {
	return &VariantValue{Scalar: x}
}

// NewVariantList builds a VariantValue holding a list.
func NewVariantList(xs []interface{}) *VariantValue {
	return &VariantValue{List: xs, IsList: true}
}
