package loader

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/qbs-loader/loader/internal/probecache"
)

// ProbeRecord is the resolved form of a `Probe` item (spec §3, §4.D):
// either reused from a cache or freshly run, with the values it produced
// attached back to the item as VariantValues. Grounded on
// reference/boltcache/source_cache_bolt.go's split between "what
// identifies an entry" and "what it's worth once resolved" — Condition
// through ImportedFiles are the identity/matching half, Values is the
// payload.
type ProbeRecord struct {
	GlobalID    string
	ProductName string
	Location    Location

	Condition         string
	InitialProperties map[string]string
	SourceCode        string

	Values        map[string]interface{}
	ImportedFiles []string

	// Reused reports whether this record came from a cache hit rather than
	// an actual configure-script run this load.
	Reused bool
}

func (p *ProbeRecord) cacheID() string {
	if p.GlobalID != "" {
		return "id:" + p.GlobalID
	}
	return "product:" + p.ProductName + "@" + p.Location.String()
}

// resolveProbes implements the Probes Resolver (spec §4.D). root's
// children that are Probe items are each resolved in document order;
// results are attached to tlp's probe list and returned.
func resolveProbes(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, root *Item, runProbes []*ProbeRecord) ([]*ProbeRecord, error) {
	var out []*ProbeRecord
	for _, child := range root.Children() {
		if child.Type() != TypeProbe {
			continue
		}
		rec, err := resolveProbe(ctx, tlp, pc, child, runProbes)
		if err != nil {
			return out, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// resolveProbe resolves a single Probe item, consulting reuse sources in
// the order spec §4.D names them: earlier-in-this-run, then the
// cross-run cache, then an actual script execution.
func resolveProbe(ctx context.Context, tlp *TopLevelProject, pc *ProductContext, item *Item, runProbes []*ProbeRecord) (*ProbeRecord, error) {
	id := item.ID()
	productName := ""
	if id == "" {
		if pc == nil {
			return nil, &internalError{msg: "probe without id outside a product context"}
		}
		productName = pc.Name
	}

	ev := tlp.Evaluator.WithContext(EvalContextProbe)

	condition, _, err := ev.Bool(ctx, item, "condition", true)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to evaluate probe condition", item.Location())
	}
	if !condition {
		return nil, nil
	}

	if id == "" && productName == "" {
		return nil, &internalError{msg: "probe resolution missing both global id and product name"}
	}

	decl := declaredScalarProperties(item)
	initial := make(map[string]string, len(decl))
	for _, name := range decl {
		v, _, err := ev.String(ctx, item, name, "")
		if err != nil {
			return nil, errors.Wrapf(err, "%s: failed to capture initial probe property %q", item.Location(), name)
		}
		initial[name] = v
	}

	sv, err := ev.Script(ctx, item)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: probe has no usable configure script", item.Location())
	}

	candidate := &ProbeRecord{
		GlobalID:          id,
		ProductName:       productName,
		Location:          item.Location(),
		Condition:         fmt.Sprintf("%v", condition),
		InitialProperties: initial,
	}

	if reused := findRunProbe(runProbes, candidate); reused != nil {
		attachProbeValues(item, reused.Values)
		return reused, nil
	}

	if tlp.ProbeCache != nil && !tlp.Params.ForceProbeExecution {
		if entry, ok, err := tlp.ProbeCache.GetProbe(candidate.cacheID()); err == nil && ok {
			if probeEntryMatches(entry, candidate) {
				rec := &ProbeRecord{
					GlobalID:          candidate.GlobalID,
					ProductName:       candidate.ProductName,
					Location:          candidate.Location,
					Condition:         candidate.Condition,
					InitialProperties: candidate.InitialProperties,
					SourceCode:        entry.SourceCode,
					Values:            stringMapToValues(entry.Values),
					ImportedFiles:     entry.ImportedFiles,
					Reused:            true,
				}
				attachProbeValues(item, rec.Values)
				tlp.AddProbe(rec)
				return rec, nil
			}
		}
	}

	bindings := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		bindings[k] = v
	}
	result, err := ev.RunScript(ctx, sv, bindings)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: probe configure script failed", item.Location())
	}

	rec := &ProbeRecord{
		GlobalID:          candidate.GlobalID,
		ProductName:       candidate.ProductName,
		Location:          candidate.Location,
		Condition:         candidate.Condition,
		InitialProperties: candidate.InitialProperties,
		Values:            result,
	}
	attachProbeValues(item, rec.Values)
	tlp.AddProbe(rec)

	if tlp.ProbeCache != nil {
		entry := &probecache.Entry{
			Condition:         rec.Condition,
			InitialProperties: rec.InitialProperties,
			Values:            valuesToStringMap(rec.Values),
			ImportedFiles:     rec.ImportedFiles,
		}
		if err := tlp.ProbeCache.PutProbe(candidate.cacheID(), entry); err != nil {
			tlp.Log.Debugf("failed to persist probe cache entry for %s: %v", candidate.cacheID(), err)
		}
	}

	return rec, nil
}

// findRunProbe looks for an already-resolved record at the same source
// location with matching condition and initial properties, produced
// earlier in this same load (spec §4.D "reused later during this run").
func findRunProbe(runProbes []*ProbeRecord, candidate *ProbeRecord) *ProbeRecord {
	for _, r := range runProbes {
		if r.Location == candidate.Location &&
			r.Condition == candidate.Condition &&
			stringMapsEqual(r.InitialProperties, candidate.InitialProperties) {
			return r
		}
	}
	return nil
}

// probeEntryMatches checks the cross-run reuse rule from spec §4.D: same
// condition, same initial properties, and no imported file newer than the
// entry's last resolve time. The configure script's source text is not
// compared; resolveProbe records none on the candidate or on the entries
// it stores.
func probeEntryMatches(entry *probecache.Entry, candidate *ProbeRecord) bool {
	if entry.Condition != candidate.Condition {
		return false
	}
	if !stringMapsEqual(entry.InitialProperties, candidate.InitialProperties) {
		return false
	}
	if len(entry.ImportedFiles) > 0 {
		newest := probecache.NewestMtime(entry.ImportedFiles)
		if newest.Unix() > entry.ResolvedAt {
			return false
		}
	}
	return true
}

func declaredScalarProperties(item *Item) []string {
	var names []string
	for cur := item; cur != nil; cur = cur.Prototype() {
		for _, n := range cur.PropertyNames() {
			if n == "condition" {
				continue
			}
			names = append(names, n)
		}
	}
	return names
}

func attachProbeValues(item *Item, values map[string]interface{}) {
	for name, v := range values {
		item.SetProperty(name, NewVariantScalar(v))
	}
}

func stringMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func stringMapToValues(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func valuesToStringMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
