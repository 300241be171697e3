package loader

import (
	"context"

	"github.com/pkg/errors"
)

// collectProducts implements the Products Collector (spec §4.L): walk the
// project tree, expand each Product item via the Multiplexer, then split
// out and merge Export items into each real product's product-module,
// synthesizing a shadow product when exports exist.
func collectProducts(ctx context.Context, tlp *TopLevelProject, proj *ProjectContext) error {
	for _, child := range proj.Root.Children() {
		if child.Type() != TypeProject {
			continue
		}
		sub := &ProjectContext{Name: child.ID(), Root: child, Scope: child, Parent: proj}
		tlp.projects = append(tlp.projects, sub)
		if err := collectProducts(ctx, tlp, sub); err != nil {
			return err
		}
	}

	for _, child := range proj.Root.Children() {
		if child.Type() != TypeProduct {
			continue
		}
		if err := collectOneProduct(ctx, tlp, proj, child); err != nil {
			return err
		}
	}
	return nil
}

func collectOneProduct(ctx context.Context, tlp *TopLevelProject, proj *ProjectContext, productItem *Item) error {
	applyProductOverrides(tlp, productItem)

	qbsView := attachTemporaryQbsForCollection(tlp, proj, productItem)
	variants, err := multiplexProduct(ctx, tlp, proj, productItem, qbsView)
	if err != nil {
		return err
	}
	detachTemporaryQbsForCollection(productItem, qbsView)

	for _, pc := range variants {
		typeTags, _, err := tlp.Evaluator.StringList(ctx, pc.Item, "type", nil)
		if err != nil {
			return errors.Wrapf(err, "%s: failed to evaluate product.type", pc.Item.Location())
		}
		tlp.RegisterProduct(pc, typeTags)

		exportItem, defaultParams, err := mergeProductExports(tlp, pc)
		if err != nil {
			return err
		}
		pc.ExportItem = exportItem
		pc.DefaultExportParameters = defaultParams

		if exportItem != nil {
			shadow := synthesizeShadowProduct(tlp, proj, pc)
			tlp.AddShadowProduct(shadow)
		}
	}
	return nil
}

func applyProductOverrides(tlp *TopLevelProject, productItem *Item) {
	name := productItem.ID()
	for key, raw := range tlp.Params.OverriddenValues {
		target, err := parseOverrideKey(key)
		if err != nil {
			continue
		}
		if target.kind == overrideProduct && target.product == name {
			productItem.SetProperty(target.property, NewVariantScalar(raw))
		}
	}
}

func attachTemporaryQbsForCollection(tlp *TopLevelProject, proj *ProjectContext, productItem *Item) *Item {
	pool := tlp.NewPool()
	qbs := pool.NewItem(TypeModuleInstance, productItem.Location())
	qbs.id = "qbs"
	qbs.SetProperty("hostPlatform", NewVariantScalar(hostPlatformName()))
	qbs.SetProperty("hostArchitecture", NewVariantScalar(hostArchitectureName()))
	productItem.SetProperty("qbs", &ItemValue{Item: qbs})
	return qbs
}

func detachTemporaryQbsForCollection(productItem *Item, qbsView *Item) {
	delete(productItem.propMap, "qbs")
}

// mergeProductExports walks productItem's children, collects every Export
// item (verifying at most one per source file), and merges them into a
// single virtual Export item carrying a defaultParameters map (spec
// §4.L).
func mergeProductExports(tlp *TopLevelProject, pc *ProductContext) (*Item, map[string]Value, error) {
	seenFiles := map[string]bool{}
	var exports []*Item
	var walkErr error
	var walk func(it *Item)
	walk = func(it *Item) {
		for _, c := range it.Children() {
			if walkErr != nil {
				return
			}
			if c.Type() == TypeExport {
				file := c.Location().FilePath
				if seenFiles[file] {
					walkErr = errors.Errorf("%s: more than one Export item in the same file", file)
					return
				}
				seenFiles[file] = true
				exports = append(exports, c)
			}
			walk(c)
		}
	}
	walk(pc.Item)
	if walkErr != nil {
		return nil, nil, walkErr
	}

	if len(exports) == 0 {
		return nil, nil, nil
	}

	pool := tlp.NewPool()
	merged := pool.NewItem(TypeExport, exports[0].Location())
	merged.id = pc.Name
	defaultParams := map[string]Value{}

	for _, exp := range exports {
		for _, name := range exp.PropertyNames() {
			v, _ := exp.OwnProperty(name)
			if err := mergeLocalProperty(pc.MergeTable(), merged, name, v); err != nil {
				return nil, nil, err
			}
		}
		for _, c := range exp.Children() {
			merged.AddChild(c)
			if c.Type() == TypeParameters {
				for _, pn := range c.PropertyNames() {
					pv, _ := c.OwnProperty(pn)
					defaultParams[pn] = pv
				}
			}
		}
	}

	return merged, defaultParams, nil
}

// synthesizeShadowProduct builds the __shadow__<realName> product used to
// evaluate exported property values from an external viewer's vantage
// point (spec §4.L).
func synthesizeShadowProduct(tlp *TopLevelProject, proj *ProjectContext, real *ProductContext) *ProductContext {
	pool := tlp.NewPool()
	shadowItem := pool.NewItem(TypeProduct, real.Item.Location())
	shadowItem.id = "__shadow__" + real.Name

	dependsItem := pool.NewItem(TypeDepends, real.Item.Location())
	dependsItem.SetProperty("name", NewVariantScalar(real.Name))
	dependsItem.SetProperty("required", NewVariantScalar(false))
	shadowItem.AddChild(dependsItem)

	shadow := &ProductContext{
		Name:        shadowItem.id,
		Item:        shadowItem,
		Project:     proj,
		TopLevel:    tlp,
		Profile:     real.Profile,
		SearchPaths: append([]string(nil), real.SearchPaths...),
		Enabled:     true,
	}
	return shadow
}
