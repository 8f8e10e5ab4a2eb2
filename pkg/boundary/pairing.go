// Package boundary builds validated layer slabs from raw per-layer
// boundary curves: per-column filtering of incomplete pairs, the
// guaranteed whole-structure fallback, and the volume-level
// degradation policy for unreliable intermediate layers.
package boundary

import (
	"fmt"
	"strings"

	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

// layerOrder lists the segmentable boundaries from the inner limiting
// membrane down to the choroid-sclera interface. The retinal
// whole-structure slab spans the outermost and innermost available
// boundaries above the choroid.
var layerOrder = []string{
	"ILM", "RNFL", "GCL", "IPL", "INL", "OPL",
	"ELM", "PR1", "PR2", "RPE", "BM", "CSI",
}

const choroidOuter = "CSI"

func layerRank(name string) int {
	for i, l := range layerOrder {
		if l == name {
			return i
		}
	}
	return -1
}

// Request names a slab to construct from two boundary layers.
type Request struct {
	// Name identifies the slab, conventionally "UPPER_LOWER".
	Name string

	// Upper and Lower are the bounding layer names.
	Upper, Lower string
}

// ParseRequest derives a Request from a "UPPER_LOWER" slab name.
func ParseRequest(name string) (Request, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Request{}, fmt.Errorf("slab name %q is not of the form UPPER_LOWER", name)
	}
	return Request{Name: name, Upper: parts[0], Lower: parts[1]}, nil
}

// ParseRequests derives Requests from a list of slab names.
func ParseRequests(names []string) ([]Request, error) {
	reqs := make([]Request, 0, len(names))
	for _, name := range names {
		req, err := ParseRequest(name)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Build constructs the requested slab from one B-scan's curves. A
// column survives only when both boundaries carry a sample there; all
// other columns hold the missing sentinel in both curves. The second
// return value is false when the slab has no valid column at all, and
// consumers treat such a slab as entirely missing, not as an error.
func Build(curves map[string]oct.Curve, req Request) (oct.Slab, bool) {
	upper, uok := curves[req.Upper]
	lower, lok := curves[req.Lower]
	if !uok || !lok {
		return oct.Slab{Name: req.Name}, false
	}

	n := len(upper.Rows)
	if len(lower.Rows) > n {
		n = len(lower.Rows)
	}

	missing := oct.Missing()
	slab := oct.Slab{
		Name:  req.Name,
		Upper: oct.Curve{Layer: upper.Layer, Rows: make([]float64, n)},
		Lower: oct.Curve{Layer: lower.Layer, Rows: make([]float64, n)},
	}
	for c := 0; c < n; c++ {
		if upper.Valid(c) && lower.Valid(c) {
			slab.Upper.Rows[c] = upper.Rows[c]
			slab.Lower.Rows[c] = lower.Rows[c]
			slab.Valid++
			if lower.Rows[c] < upper.Rows[c] {
				slab.Inverted++
			}
		} else {
			slab.Upper.Rows[c] = missing
			slab.Lower.Rows[c] = missing
		}
	}
	return slab, slab.Usable()
}

// WholeStructure builds the fallback slab spanning the outermost to
// innermost retinal boundary present in the curves. It exists whenever
// two distinct retinal layers were segmented, regardless of how many
// intermediate layers are missing.
func WholeStructure(curves map[string]oct.Curve) (oct.Slab, bool) {
	req, ok := wholeRequest(func(layer string) bool {
		c, present := curves[layer]
		return present && c.ValidCount() > 0
	})
	if !ok {
		return oct.Slab{}, false
	}
	return Build(curves, req)
}

// wholeRequest resolves the whole-structure pair over whichever layers
// satisfy the presence predicate.
func wholeRequest(present func(layer string) bool) (Request, bool) {
	upper, lower := "", ""
	for _, layer := range layerOrder {
		if layer == choroidOuter || !present(layer) {
			continue
		}
		if upper == "" {
			upper = layer
		}
		lower = layer
	}
	if upper == "" || upper == lower {
		return Request{}, false
	}
	return Request{Name: upper + "_" + lower, Upper: upper, Lower: lower}, true
}

// VolumeSlabs is the outcome of pairing an entire scan.
type VolumeSlabs struct {
	// Names lists the exposed slabs, whole-structure first.
	Names []string

	// Whole is the name of the whole-structure slab.
	Whole string

	// PerScan holds, per B-scan, the exposed slabs keyed by name.
	// Slabs unusable on an individual B-scan are present with zero
	// valid columns.
	PerScan []map[string]oct.Slab

	// Degraded lists requested slab names dropped by the volume-level
	// degradation policy.
	Degraded []string
}

// BuildVolume pairs every B-scan of a scan and applies the volume
// degradation policy: when a requested intermediate slab is unusable
// in more than threshold of the B-scans, the whole volume falls back
// to exposing the whole-structure slab only, with a warning. Complete
// and incomplete intermediate slabs are never mixed. Requests whose
// layers were never segmented anywhere in the scan are skipped without
// counting toward degradation.
func BuildVolume(perScan []map[string]oct.Curve, reqs []Request, threshold float64, log *runlog.Collector) VolumeSlabs {
	out := VolumeSlabs{PerScan: make([]map[string]oct.Slab, len(perScan))}
	for i := range out.PerScan {
		out.PerScan[i] = make(map[string]oct.Slab)
	}
	if len(perScan) == 0 {
		return out
	}

	present := func(layer string) bool {
		for _, curves := range perScan {
			if c, ok := curves[layer]; ok && c.ValidCount() > 0 {
				return true
			}
		}
		return false
	}

	whole, haveWhole := wholeRequest(present)
	if haveWhole {
		out.Whole = whole.Name
	}

	type candidate struct {
		req          Request
		slabs        []oct.Slab
		unusableFrac float64
		inverted     int
	}
	var candidates []candidate

	for _, req := range reqs {
		if haveWhole && req.Name == whole.Name {
			continue
		}
		if !present(req.Upper) || !present(req.Lower) {
			log.Infof("skipping slab %s: layer %s was not segmented in this scan",
				req.Name, firstAbsent(req, present))
			continue
		}
		cand := candidate{req: req, slabs: make([]oct.Slab, len(perScan))}
		unusable := 0
		for i, curves := range perScan {
			slab, ok := Build(curves, req)
			cand.slabs[i] = slab
			cand.inverted += slab.Inverted
			if !ok {
				unusable++
			}
		}
		cand.unusableFrac = float64(unusable) / float64(len(perScan))
		candidates = append(candidates, cand)
	}

	for _, cand := range candidates {
		if cand.unusableFrac > threshold {
			out.Degraded = append(out.Degraded, cand.req.Name)
			log.Warnf("slab %s is unusable in %.1f%% of B-scans (threshold %.0f%%)",
				cand.req.Name, 100*cand.unusableFrac, 100*threshold)
		}
	}

	expose := func(name string, slabs []oct.Slab, inverted int) {
		out.Names = append(out.Names, name)
		for i := range perScan {
			out.PerScan[i][name] = slabs[i]
		}
		if inverted > 0 {
			log.Warnf("%d columns with inverted boundary order in slab %s", inverted, name)
		}
	}

	if haveWhole {
		wholeSlabs := make([]oct.Slab, len(perScan))
		wholeInverted := 0
		for i, curves := range perScan {
			slab, _ := Build(curves, whole)
			wholeSlabs[i] = slab
			wholeInverted += slab.Inverted
		}
		expose(whole.Name, wholeSlabs, wholeInverted)
	}

	if len(out.Degraded) > 0 {
		if haveWhole {
			log.Warnf("exposing only the whole-structure slab %s for this scan", whole.Name)
		}
		return out
	}

	for _, cand := range candidates {
		expose(cand.req.Name, cand.slabs, cand.inverted)
	}
	return out
}

func firstAbsent(req Request, present func(string) bool) string {
	if !present(req.Upper) {
		return req.Upper
	}
	return req.Lower
}
