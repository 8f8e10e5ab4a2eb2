package grid

import (
	"image"
	"math"
	"sort"

	"octmeasure/pkg/oct"
	"octmeasure/pkg/registration"
)

// BuildMap paints per-column profile values along their registered
// traces to form an en-face map. For raster acquisitions the bands
// between neighbouring traces are closed by nearest-neighbour
// sampling, so a missing stretch of profile stays missing on the map
// rather than being bridged with invented values. Pixels the scan
// never covered stay outside the map.
func BuildMap(profiles []oct.Profile, res *registration.Result, pattern oct.ScanPattern, kind oct.MapKind) *oct.Map {
	m := oct.NewMap(res.W, res.H, res.ScaleMMPerPx, kind)

	sums := make([]float64, res.W*res.H)
	counts := make([]int, res.W*res.H)
	covered := make([]bool, res.W*res.H)
	for ti, t := range res.Traces {
		if ti >= len(profiles) {
			break
		}
		prof := profiles[ti]
		for c, p := range t.Points {
			if c >= len(prof.Values) {
				break
			}
			x, y := int(math.Round(p.X)), int(math.Round(p.Y))
			if !m.InBounds(x, y) {
				continue
			}
			i := m.Idx(x, y)
			covered[i] = true
			if v := prof.Values[c]; !oct.IsMissing(v) {
				sums[i] += v
				counts[i]++
			}
		}
	}
	for i, ok := range covered {
		if !ok {
			continue
		}
		v := oct.Missing()
		if counts[i] > 0 {
			v = sums[i] / float64(counts[i])
		}
		m.Set(i%res.W, i/res.W, v)
	}

	if pattern.Volumetric() && len(res.Traces) > 1 {
		densify(m, res)
	}
	return m
}

// densify fills the gap pixels between neighbouring raster traces
// with the value of the nearest painted pixel, out to three quarters
// of the trace spacing. Values are copied as painted, so missing
// trace pixels spread as missing.
func densify(m *oct.Map, res *registration.Result) {
	var points samples
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.Inside[m.Idx(x, y)] {
				continue
			}
			points = append(points, sample{X: float64(x), Y: float64(y), Value: m.At(x, y)})
			minX = math.Min(minX, float64(x))
			minY = math.Min(minY, float64(y))
			maxX = math.Max(maxX, float64(x))
			maxY = math.Max(maxY, float64(y))
		}
	}
	s := newSampler(points)
	if s == nil {
		return
	}

	reach := 0.75 * traceSpacing(res)
	if reach < 1 {
		return
	}
	reachSq := reach * reach

	x0, y0 := int(minX-reach), int(minY-reach)
	x1, y1 := int(maxX+reach)+1, int(maxY+reach)+1
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !m.InBounds(x, y) || m.Inside[m.Idx(x, y)] {
				continue
			}
			if v, distSq := s.nearest(float64(x), float64(y)); distSq <= reachSq {
				m.Set(x, y, v)
			}
		}
	}
}

// traceSpacing estimates the pixel distance between neighbouring
// traces as the median gap between consecutive trace midpoints.
func traceSpacing(res *registration.Result) float64 {
	var gaps []float64
	for i := 1; i < len(res.Traces); i++ {
		a, b := res.Traces[i-1].Midpoint(), res.Traces[i].Midpoint()
		gaps = append(gaps, math.Hypot(b.X-a.X, b.Y-a.Y))
	}
	if len(gaps) == 0 {
		return 0
	}
	sort.Float64s(gaps)
	return gaps[len(gaps)/2]
}

// MaskMap turns a binary en-face vessel mask into a ratio map on the
// registration canvas, so vascular density is measured with the same
// grids as thickness. Pixels outside the localiser fall outside the
// map.
func MaskMap(img *image.Gray, res *registration.Result) *oct.Map {
	m := oct.NewMap(res.W, res.H, res.ScaleMMPerPx, oct.KindRatio)
	if img == nil {
		return m
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cx := x - bounds.Min.X + res.Pad.Left
			cy := y - bounds.Min.Y + res.Pad.Top
			if !m.InBounds(cx, cy) {
				continue
			}
			v := 0.0
			if img.GrayAt(x, y).Y >= 128 {
				v = 1
			}
			m.Set(cx, cy, v)
		}
	}
	return m
}
