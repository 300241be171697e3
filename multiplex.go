package loader

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// multiplexAxis names one configured expansion dimension and the values a
// product's temporary `qbs` view reports for it (spec §4.K).
type multiplexAxis struct {
	Property string // e.g. "architectures", read off the temporary qbs module
	Values   []string
}

var standardMultiplexAxes = []string{"architectures", "profiles", "buildVariants"}

// multiplexProduct implements the Multiplexer (spec §4.K): expand a
// product along its configured axes into concrete variants plus an
// optional aggregator, registering each variant under a fresh
// ProductContext sharing the same source item.
func multiplexProduct(ctx context.Context, tlp *TopLevelProject, proj *ProjectContext, productItem *Item, qbsView *Item) ([]*ProductContext, error) {
	axes, err := readMultiplexAxes(ctx, tlp, qbsView)
	if err != nil {
		return nil, err
	}

	combos := crossProductAxes(axes)
	name, _, err := tlp.Evaluator.String(ctx, productItem, "name", "")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate product name", productItem.Location())
	}

	if len(combos) <= 1 {
		single := newProductContext(tlp, proj, productItem, name, nil)
		return []*ProductContext{single}, nil
	}

	var variants []*ProductContext
	for _, combo := range combos {
		pc := newProductContext(tlp, proj, productItem, name, combo)
		variants = append(variants, pc)
	}

	aggregateMultiplexedProducts, _, err := tlp.Evaluator.Bool(ctx, productItem, "aggregate", true)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate product.aggregate", productItem.Location())
	}
	if aggregateMultiplexedProducts {
		agg := newProductContext(tlp, proj, productItem, name, nil)
		agg.IsAggregator = true
		agg.AggregateSiblings = variants
		for _, v := range variants {
			v.AggregateSiblings = variants
		}
		variants = append(variants, agg)
	} else {
		for _, v := range variants {
			v.AggregateSiblings = variants
		}
	}

	return variants, nil
}

func newProductContext(tlp *TopLevelProject, proj *ProjectContext, productItem *Item, name string, axes map[string]string) *ProductContext {
	pool := tlp.NewPool()
	item := pool.Clone(productItem)

	muxID, _ := MultiplexConfigIDFromAxes(tlp, axes)
	fullName := name
	if muxID != "" {
		fullName = name + ":" + muxID
	}

	profile := axes["profiles"]
	if profile == "" {
		profile = tlp.Params.ProfileOrDefault()
	}

	pc := &ProductContext{
		Name:              fullName,
		MultiplexConfigID: muxID,
		Item:              item,
		Project:           proj,
		TopLevel:          tlp,
		Profile:           profile,
		MultiplexAxes:     axes,
		SearchPaths:       append([]string(nil), tlp.Params.SearchPaths...),
		Enabled:           true,
	}
	pc.ProfileModuleTree = expandProfileModuleTree(tlp, profile)
	proj.Products = append(proj.Products, pc)
	return pc
}

// expandProfileModuleTree asks the Profiles capability to expand profile
// into a flat key/value map, then structures it into a module->property
// tree ready for injection as VariantValues (spec §4.F "Profile
// injection").
func expandProfileModuleTree(tlp *TopLevelProject, profile string) map[string]map[string]Value {
	flat, err := tlp.Profiles.ExpandedBuildConfiguration(profile, tlp.Params.ConfigurationName)
	if err != nil {
		tlp.Log.Debugf("failed to expand profile %q: %v", profile, err)
		return nil
	}
	tree := tlp.Profiles.FinalBuildConfigurationTree(flat, tlp.Params.OverriddenValues)
	out := make(map[string]map[string]Value, len(tree))
	for mod, props := range tree {
		out[mod] = make(map[string]Value, len(props))
		for prop, v := range props {
			if list, ok := v.([]interface{}); ok {
				out[mod][prop] = NewVariantList(list)
			} else {
				out[mod][prop] = NewVariantScalar(v)
			}
		}
	}
	return out
}

func readMultiplexAxes(ctx context.Context, tlp *TopLevelProject, qbsView *Item) ([]multiplexAxis, error) {
	if qbsView == nil {
		return nil, nil
	}
	var axes []multiplexAxis
	for _, prop := range standardMultiplexAxes {
		vals, set, err := tlp.Evaluator.StringList(ctx, qbsView, prop, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to evaluate qbs.%s", prop)
		}
		if set && len(vals) > 0 {
			axes = append(axes, multiplexAxis{Property: prop, Values: vals})
		}
	}
	return axes, nil
}

// crossProductAxes expands a set of named axes into every combination,
// each represented as an axis-name -> value map (spec §4.K).
func crossProductAxes(axes []multiplexAxis) []map[string]string {
	if len(axes) == 0 {
		return nil
	}
	combos := []map[string]string{{}}
	for _, axis := range axes {
		var next []map[string]string
		for _, combo := range combos {
			for _, v := range axis.Values {
				c := make(map[string]string, len(combo)+1)
				for k, vv := range combo {
					c[k] = vv
				}
				c[axis.Property] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	sort.Slice(combos, func(i, j int) bool {
		return axisMapKey(combos[i]) < axisMapKey(combos[j])
	})
	return combos
}

func axisMapKey(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "=" + m[k] + ";"
	}
	return s
}
