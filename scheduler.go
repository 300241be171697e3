package loader

import (
	"context"

	"github.com/pkg/errors"
)

// queueEntry is one FIFO entry in the Products Scheduler: a product and
// the queue length observed when it was (re-)inserted, used to decide
// whether deferral is still allowed (spec §4.M).
type queueEntry struct {
	pc              *ProductContext
	queueSizeOnPush int
}

// runScheduler implements the Products Scheduler (spec §4.M): drive every
// product through the Dependencies Resolver (and, through it, the Module
// Loader/Instantiator/Merger and Probes Resolver) with a forward-progress
// deferral policy, then run the export-setup pass.
func runScheduler(ctx context.Context, tlp *TopLevelProject, all []*ProductContext) error {
	queue := make([]queueEntry, 0, len(all))
	for _, pc := range all {
		queue = append(queue, queueEntry{pc: pc, queueSizeOnPush: -1})
	}

	for len(queue) > 0 {
		if tlp.Cancelled() {
			return cancelError{}
		}

		entry := queue[0]
		queue = queue[1:]
		pc := entry.pc

		allowDefer := entry.queueSizeOnPush < 0 || len(queue) < entry.queueSizeOnPush

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					if ce, ok := r.(cancelError); ok {
						err = ce
						return
					}
					panic(r)
				}
			}()
			return resolveDependencies(ctx, tlp, pc, allowDefer)
		}()

		if err != nil {
			if IsCancelError(err) {
				return err
			}
			if _, deferred := err.(deferSignal); deferred {
				queue = append(queue, queueEntry{pc: pc, queueSizeOnPush: len(queue)})
				continue
			}
			pc.recordError(err)
			tlp.MarkErroneous(pc.Name)
			continue
		}

		if !pc.dependenciesResolved {
			queue = append(queue, queueEntry{pc: pc, queueSizeOnPush: len(queue)})
			continue
		}

		if err := finishProduct(ctx, tlp, pc); err != nil {
			pc.recordError(err)
			tlp.MarkErroneous(pc.Name)
		}
	}

	return runExportSetupPass(ctx, tlp, all)
}

// finishProduct runs the Property Merger's final pass, the Probes
// Resolver, the Groups Handler, and the Product Resolver for one product
// once its dependency resolution has completed.
func finishProduct(ctx context.Context, tlp *TopLevelProject, pc *ProductContext) error {
	mt := pc.MergeTable()
	pruned := map[*Item]bool{}
	for _, dis := range collectDisabledDescendants(tlp, pc.Item) {
		pruned[dis] = true
	}

	if err := finalMergeProduct(tlp, pc, mt, pruned); err != nil {
		return err
	}
	erasePrunedContributions(mt, pruned)

	probes, err := resolveProbes(ctx, tlp, pc, pc.Item, tlp.Probes())
	if err != nil {
		return err
	}
	pc.Probes = probes

	buildGroupModuleViews(tlp, pc)

	return resolveProduct(ctx, tlp, pc)
}

func collectDisabledDescendants(tlp *TopLevelProject, root *Item) []*Item {
	var out []*Item
	var walk func(*Item)
	walk = func(it *Item) {
		if tlp.IsDisabled(it) {
			out = append(out, it)
		}
		for _, c := range it.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}

// runExportSetupPass evaluates every shadow product's Depends so exported
// property values can be resolved from the external viewer's vantage
// point (spec §4.L/§4.M "run the export-setup pass over every finished
// real product").
func runExportSetupPass(ctx context.Context, tlp *TopLevelProject, all []*ProductContext) error {
	for _, pc := range tlp.ShadowProducts() {
		if err := resolveDependencies(ctx, tlp, pc, false); err != nil {
			if IsCancelError(err) {
				return err
			}
			continue
		}
		if err := resolveProduct(ctx, tlp, pc); err != nil {
			pc.recordError(err)
		}
	}
	return nil
}

var errSchedulerStalled = errors.New("scheduler made no forward progress")
