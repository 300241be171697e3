package testutil

import "github.com/qbs-loader/loader"

// mkpool is shared by the mnemonic builders below so a whole fixture tree
// comes from one pool, the way production code always allocates items
// from a single TopLevelProject-owned pool.
func mkpool() *loader.ItemPool { return loader.NewItemPool() }

// Builder accumulates a fixture item tree under one pool.
type Builder struct {
	Pool *loader.ItemPool
}

// NewBuilder starts a fresh fixture tree.
func NewBuilder() *Builder { return &Builder{Pool: mkpool()} }

// Item creates a bare item of the given type and id at a synthetic
// location derived from id, short for the common case where a test
// doesn't care about real file/line info.
func (b *Builder) Item(t loader.ItemType, id string) *loader.Item {
	it := b.Pool.NewItem(t, loader.Location{FilePath: id + ".qbs", Line: 1})
	return it
}

// Project builds a root Project item.
func (b *Builder) Project(id string, children ...*loader.Item) *loader.Item {
	p := b.Item(loader.TypeProject, id)
	for _, c := range children {
		p.AddChild(c)
	}
	return p
}

// Product builds a Product item with the given name and type tags
// assigned directly as a "type" string-list property, plus any children
// (Depends, Group, Export, ...).
func (b *Builder) Product(name string, typeTags []string, children ...*loader.Item) *loader.Item {
	p := b.Item(loader.TypeProduct, name)
	p.SetProperty("name", loader.NewVariantScalar(name))
	if len(typeTags) > 0 {
		p.SetProperty("type", NewStringListValue(typeTags))
	}
	for _, c := range children {
		p.AddChild(c)
	}
	return p
}

// Depends builds a Depends item naming the given module.
func (b *Builder) Depends(name string, required bool) *loader.Item {
	d := b.Item(loader.TypeDepends, "depends-"+name)
	d.SetProperty("name", loader.NewVariantScalar(name))
	d.SetProperty("required", loader.NewVariantScalar(required))
	return d
}

// Module builds a bare standalone module prototype for the given qualified
// name, located at modules/<name>/<name>.qbs; it has no id, properties or
// declarations.
func (b *Builder) Module(name string) *loader.Item {
	m := b.Pool.NewItem(loader.TypeModule, loader.Location{FilePath: "modules/" + name + "/" + name + ".qbs", Line: 1})
	return m
}

// Group builds a Group item with the given files list.
func (b *Builder) Group(files ...string) *loader.Item {
	g := b.Item(loader.TypeGroup, "group")
	g.SetProperty("files", NewStringListValue(files))
	return g
}

// Export builds an Export item.
func (b *Builder) Export() *loader.Item {
	return b.Item(loader.TypeExport, "export")
}

// SetScalar sets a literal scalar property on item, the fixture stand-in
// for a source-language property assignment.
func SetScalar(item *loader.Item, name string, value interface{}) {
	item.SetProperty(name, loader.NewVariantScalar(value))
}

// SetList sets a literal list property on item.
func SetList(item *loader.Item, name string, values []string) {
	item.SetProperty(name, NewStringListValue(values))
}

// NewStringListValue converts a []string into the []interface{}-backed
// VariantValue list form loader.Evaluator implementations expect.
func NewStringListValue(values []string) *loader.VariantValue {
	xs := make([]interface{}, len(values))
	for i, v := range values {
		xs[i] = v
	}
	return loader.NewVariantList(xs)
}
