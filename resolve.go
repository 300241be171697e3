package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Artifact is one resolved source artifact produced by flattening a
// group's files/patterns/excludeFiles (spec §4.N).
type Artifact struct {
	AbsolutePath string
	ModuleTarget string
	FileTags     map[string]struct{}
}

// Rule, FileTagger, JobLimit and Scanner mirror the per-scope
// build-language constructs the Product Resolver collects and merges
// (spec §4.N); the loader core only needs their resolved shape, not their
// execution semantics (out of scope per spec.md Non-goals).
type Rule struct {
	Name     string
	Inputs   []string
	Outputs  []string
	Location Location
}

type FileTagger struct {
	Patterns []string
	FileTags []string
	Priority int
}

type JobLimit struct {
	Pool  string
	Limit int
}

type Scanner struct {
	InputTags []string
}

// ExportedModule is the serialized form of a product's merged Export item
// (spec §4.N): for each assigned property, either its literal value or
// its source text, plus import statements and prefix rewrites for making
// exported paths portable.
type ExportedModule struct {
	Name            string
	Imports         []string
	PropertyValues  map[string]interface{}
	PropertySources map[string]string
	PrefixRewrites  map[string]string
}

// ResolvedProduct is the frozen output of the Product Resolver for one
// product (spec §4.N).
type ResolvedProduct struct {
	Name                      string
	TypeTags                  map[string]struct{}
	TargetName                string
	SourceDirectory           string
	DestinationDirectory      string
	MultiplexConfigurationID  string

	Artifacts   []*Artifact
	Rules       []*Rule
	FileTaggers []*FileTagger
	JobLimits   []*JobLimit
	Scanners    []*Scanner

	ExportedModule *ExportedModule

	// GeneratorGUID is a stable identifier for this product's build-graph
	// node, keyed by its source location so that IDE generators (out of
	// scope for this package) see the same id across reloads (spec §6).
	GeneratorGUID string
}

// resolveProduct implements the Product Resolver (spec §4.N): the final
// pass that evaluates and freezes everything downstream consumers need.
func resolveProduct(ctx context.Context, tlp *TopLevelProject, pc *ProductContext) error {
	ev := tlp.Evaluator

	name, _, err := ev.String(ctx, pc.Item, "name", pc.Name)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to evaluate product.name", pc.Item.Location())
	}
	typeList, _, err := ev.StringList(ctx, pc.Item, "type", nil)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to evaluate product.type", pc.Item.Location())
	}
	targetName, _, err := ev.String(ctx, pc.Item, "targetName", name)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to evaluate product.targetName", pc.Item.Location())
	}
	sourceDir, _, err := ev.String(ctx, pc.Item, "sourceDirectory", filepath.Dir(pc.Item.Location().FilePath))
	if err != nil {
		return errors.Wrapf(err, "%s: failed to evaluate product.sourceDirectory", pc.Item.Location())
	}
	destDir, _, err := ev.String(ctx, pc.Item, "destinationDirectory", "")
	if err != nil {
		return errors.Wrapf(err, "%s: failed to evaluate product.destinationDirectory", pc.Item.Location())
	}

	rp := &ResolvedProduct{
		Name:                     name,
		TypeTags:                 stringSetOf(typeList),
		TargetName:               targetName,
		SourceDirectory:          sourceDir,
		DestinationDirectory:     destDir,
		MultiplexConfigurationID: pc.MultiplexConfigID,
	}

	artifacts, err := collectArtifacts(ctx, tlp, pc)
	if err != nil {
		return err
	}
	rp.Artifacts = artifacts

	rp.Rules, rp.FileTaggers, rp.JobLimits, rp.Scanners = collectScopedConstructs(pc.Item)
	sort.Slice(rp.FileTaggers, func(i, j int) bool { return rp.FileTaggers[i].Priority > rp.FileTaggers[j].Priority })

	applyFileTaggers(rp)

	if pc.ExportItem != nil {
		em, err := buildExportedModule(ctx, tlp, pc)
		if err != nil {
			return err
		}
		rp.ExportedModule = em
	}

	pc.ResolvedModuleTree = mergeProfileAndOverrideTrees(pc)
	if tlp.GuidPool != nil {
		rp.GeneratorGUID = tlp.GuidPool.IDFor(pc.Item.Location().FilePath + "\x00" + pc.MultiplexConfigID).String()
	}
	pc.resolvedProduct = rp
	return nil
}

func stringSetOf(xs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}

// collectArtifacts flattens the files and excludeFiles lists of every
// enabled group, nested groups included, into source artifacts keyed by
// (module-target, absolute path), all under the "default" module target;
// a duplicate is an error. Group patterns are not expanded and files are
// not checked for existence.
func collectArtifacts(ctx context.Context, tlp *TopLevelProject, pc *ProductContext) ([]*Artifact, error) {
	seen := map[string]*Artifact{}
	var out []*Artifact

	var walk func(it *Item) error
	walk = func(it *Item) error {
		for _, g := range it.Children() {
			if g.Type() != TypeGroup {
				continue
			}
			if tlp.IsDisabled(g) {
				continue
			}
			files, _, err := tlp.Evaluator.StringList(ctx, g, "files", nil)
			if err != nil {
				return errors.Wrapf(err, "%s: failed to evaluate group.files", g.Location())
			}
			exclude, _, err := tlp.Evaluator.StringList(ctx, g, "excludeFiles", nil)
			if err != nil {
				return errors.Wrapf(err, "%s: failed to evaluate group.excludeFiles", g.Location())
			}
			excluded := stringSetOf(exclude)

			for _, f := range files {
				if _, isExcluded := excluded[f]; isExcluded {
					continue
				}
				abs := f
				if !filepath.IsAbs(abs) {
					abs = filepath.Join(pc.Item.Location().FilePath, "..", f)
				}
				key := "default\x00" + abs
				if prior, dup := seen[key]; dup {
					return errors.Errorf("%s: duplicate artifact %s (already added at %s)", g.Location(), abs, prior.AbsolutePath)
				}
				art := &Artifact{AbsolutePath: abs, ModuleTarget: "default", FileTags: map[string]struct{}{}}
				seen[key] = art
				out = append(out, art)
			}
			if err := walk(g); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(pc.Item); err != nil {
		return nil, err
	}
	return out, nil
}

func collectScopedConstructs(root *Item) ([]*Rule, []*FileTagger, []*JobLimit, []*Scanner) {
	var rules []*Rule
	var taggers []*FileTagger
	var limits []*JobLimit
	var scanners []*Scanner

	var walk func(it *Item)
	walk = func(it *Item) {
		switch it.Type() {
		case TypeRule:
			rules = append(rules, &Rule{Name: it.ID(), Location: it.Location()})
		case TypeFileTagger:
			taggers = append(taggers, &FileTagger{Priority: modulePriority(it)})
		case TypeJobLimit:
			limits = append(limits, &JobLimit{Pool: it.ID()})
		case TypeScanner:
			scanners = append(scanners, &Scanner{})
		}
		for _, c := range it.Children() {
			walk(c)
		}
	}
	walk(root)
	return rules, taggers, limits, scanners
}

// applyFileTaggers derives each artifact's file tags as the union of the
// tags of every declared tagger whose patterns match its filename (spec
// §4.N). The owning group's own file tags are not added.
func applyFileTaggers(rp *ResolvedProduct) {
	for _, art := range rp.Artifacts {
		base := filepath.Base(art.AbsolutePath)
		for _, tagger := range rp.FileTaggers {
			if matchesAnyPattern(base, tagger.Patterns) {
				for _, t := range tagger.FileTags {
					art.FileTags[t] = struct{}{}
				}
			}
		}
	}
}

func matchesAnyPattern(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// buildExportedModule serializes the own properties of the merged Export
// item into an ExportedModule record (spec §4.N): VariantValues by value,
// SourceValues by source text, item values as a placeholder string. Values
// are taken as stored, not evaluated from the shadow product's vantage
// point, and Imports and PrefixRewrites are left empty.
func buildExportedModule(ctx context.Context, tlp *TopLevelProject, pc *ProductContext) (*ExportedModule, error) {
	em := &ExportedModule{
		Name:            pc.Name,
		PropertyValues:  map[string]interface{}{},
		PropertySources: map[string]string{},
		PrefixRewrites:  map[string]string{},
	}
	for _, name := range pc.ExportItem.PropertyNames() {
		v, _ := pc.ExportItem.OwnProperty(name)
		switch val := v.(type) {
		case *VariantValue:
			if val.IsList {
				em.PropertyValues[name] = val.List
			} else {
				em.PropertyValues[name] = val.Scalar
			}
		case *SourceValue:
			em.PropertySources[name] = val.Source
		case *ItemValue:
			em.PropertyValues[name] = fmt.Sprintf("<item %s>", val.Item.ID())
		}
	}
	return em, nil
}

// mergeProfileAndOverrideTrees computes the fully resolved module
// property tree (profile defaults layered under command-line overrides),
// kept on the ProductContext for downstream consumers (spec §3).
func mergeProfileAndOverrideTrees(pc *ProductContext) map[string]map[string]Value {
	out := make(map[string]map[string]Value, len(pc.ProfileModuleTree))
	for mod, props := range pc.ProfileModuleTree {
		out[mod] = make(map[string]Value, len(props))
		for k, v := range props {
			out[mod][k] = v
		}
	}
	for _, mod := range pc.Item.Modules() {
		if mod.Instance == nil {
			continue
		}
		if out[mod.Name] == nil {
			out[mod.Name] = map[string]Value{}
		}
		for _, name := range mod.Instance.PropertyNames() {
			v, _ := mod.Instance.OwnProperty(name)
			out[mod.Name][name] = v
		}
	}
	return out
}
