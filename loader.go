// Package loader implements a declarative, multi-language project loader:
// it turns a tree of build-description files into a fully resolved set of
// products, following dependency resolution, module instantiation,
// property merging, probe execution and product scheduling.
package loader

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/qbs-loader/loader/internal/guidpool"
	"github.com/qbs-loader/loader/internal/loglib"
	"github.com/qbs-loader/loader/internal/probecache"
)

// LoadResult is the top-level output of Load: every product that finished
// resolution, plus the names of any that hit a fatal error.
type LoadResult struct {
	Products         []*ProductContext
	ErroneousProducts []string
	Probes           []*ProbeRecord
}

// Load runs the whole pipeline described in spec §2's data-flow diagram:
// Reader -> Item tree -> Products Collector -> (per product, in scheduler
// order) Dependencies Resolver <-> Module Loader/Instantiator/Merger ->
// Probes -> Groups Handler -> Product Resolver -> resolved project.
// Grounded on reference/gps-core/solver.go's top-level Solve(): validate
// inputs, build a bridge/context, run to completion or surface an error.
func Load(ctx context.Context, params SetupProjectParameters, ev Evaluator, ir ItemReader, pf Profiles, log *loglib.Logger) (result *LoadResult, err error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = loglib.New(nowWriter{})
	}
	if pf == nil {
		pf = noneProfile{}
	}

	var cache *probecache.Cache
	if params.BuildRoot != "" {
		cache, err = probecache.Open(probeCacheDir(params.BuildRoot), time.Now())
		if err != nil {
			log.Logf("warning: probe cache unavailable: %v\n", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	var guids *guidpool.Pool
	if params.BuildRoot != "" {
		guids, err = guidpool.Open(guidPoolPath(params.BuildRoot))
		if err != nil {
			log.Logf("warning: guid pool unavailable: %v\n", err)
			guids = nil
		} else {
			defer func() {
				if ferr := guids.Flush(); ferr != nil {
					log.Logf("warning: failed to flush guid pool: %v\n", ferr)
				}
			}()
		}
	}

	tlp := NewTopLevelProject(params, ev, ir, pf, cache, guids, log)

	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(cancelError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	root, err := ir.SetUpItemFromFile(params.ProjectFilePath, Location{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read project file %s", params.ProjectFilePath)
	}
	root = ir.WrapInProjectIfNecessary(root)

	if err := injectProfileTrees(tlp, pf); err != nil {
		return nil, err
	}

	topProj := &ProjectContext{Name: "", Root: root, Scope: root}
	tlp.projects = append(tlp.projects, topProj)

	if err := collectProducts(ctx, tlp, topProj); err != nil {
		return nil, err
	}

	all := allRegisteredProducts(tlp)
	if err := runScheduler(ctx, tlp, all); err != nil {
		return nil, err
	}

	return &LoadResult{
		Products:          all,
		ErroneousProducts: tlp.ErroneousProductNames(),
		Probes:            tlp.Probes(),
	}, nil
}

func allRegisteredProducts(tlp *TopLevelProject) []*ProductContext {
	tlp.mu.RLock()
	defer tlp.mu.RUnlock()
	out := make([]*ProductContext, 0, len(tlp.productsByName))
	for _, pc := range tlp.productsByName {
		out = append(out, pc)
	}
	return out
}

// injectProfileTrees checks, once and before products exist, that the
// requested top-level profile (or "none") is known and expands without
// error; the expansion itself is discarded. Each product's
// pc.ProfileModuleTree is built later by newProductContext, which asks the
// TopLevelProject's Profiles capability directly.
func injectProfileTrees(tlp *TopLevelProject, pf Profiles) error {
	name := tlp.Params.ProfileOrDefault()
	if !pf.Lookup(name) {
		return errors.Errorf("unknown profile %q", name)
	}
	_, err := pf.ExpandedBuildConfiguration(name, tlp.Params.ConfigurationName)
	return err
}

func probeCacheDir(buildRoot string) string {
	return buildRoot + "/.qbs/probes"
}

func guidPoolPath(buildRoot string) string {
	return buildRoot + "/.qbs/generator-guids"
}

// nowWriter is the default log sink when the caller doesn't supply one:
// discards everything, matching golang-dep's ioutil.Discard default.
type nowWriter struct{}

func (nowWriter) Write(p []byte) (int, error) { return len(p), nil }
