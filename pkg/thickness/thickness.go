// Package thickness converts layer slabs into per-column thickness
// profiles in micrometres, under either the axis-aligned or the
// locally-normal measurement convention.
package thickness

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"octmeasure/pkg/oct"
)

// slopeWindow is the half-width, in columns, of the neighbourhood used
// to estimate the upper boundary's local tangent.
const slopeWindow = 2

// Compute measures the thickness of slab at every column. Axis-aligned
// thickness is the vertical row distance scaled to micrometres.
// Locally-normal thickness is measured along the perpendicular to the
// upper boundary in physical space; for a flat structure tilted by
// angle theta this equals the axial distance times cos(theta). Columns
// without a valid boundary pair hold the missing sentinel.
func Compute(slab oct.Slab, scale oct.Scale, conv oct.Convention) oct.Profile {
	n := slab.Columns()
	prof := oct.Profile{
		Slab:       slab.Name,
		Values:     make([]float64, n),
		Convention: conv,
		Scale:      scale,
	}
	missing := oct.Missing()
	for c := 0; c < n; c++ {
		if !slab.Upper.Valid(c) || !slab.Lower.Valid(c) {
			prof.Values[c] = missing
			continue
		}
		switch conv {
		case oct.LocallyNormal:
			prof.Values[c] = normalThickness(slab, scale, c)
		default:
			prof.Values[c] = axialThickness(slab, scale, c)
		}
	}
	return prof
}

func axialThickness(slab oct.Slab, scale oct.Scale, c int) float64 {
	return (slab.Lower.Rows[c] - slab.Upper.Rows[c]) * scale.Y * 1000
}

// normalThickness casts a ray from the upper boundary along its local
// normal and intersects it with the lower boundary polyline. Columns
// where the tangent cannot be estimated, or where the ray leaves the
// segmented region before reaching the lower boundary, fall back to
// the axial measurement.
func normalThickness(slab oct.Slab, scale oct.Scale, c int) float64 {
	beta, ok := localSlope(slab.Upper, scale, c)
	if !ok {
		return axialThickness(slab, scale, c)
	}
	norm := math.Sqrt(1 + beta*beta)
	dx, dy := -beta/norm, 1/norm

	px := float64(c) * scale.X
	py := slab.Upper.Rows[c] * scale.Y

	best := math.Inf(1)
	for a := 0; a < slab.Columns()-1; a++ {
		b := a + 1
		if !slab.Lower.Valid(a) || !slab.Lower.Valid(b) {
			continue
		}
		ax, ay := float64(a)*scale.X, slab.Lower.Rows[a]*scale.Y
		bx, by := float64(b)*scale.X, slab.Lower.Rows[b]*scale.Y
		if t, ok := raySegment(px, py, dx, dy, ax, ay, bx, by); ok && t < best {
			best = t
		}
	}
	if math.IsInf(best, 1) {
		return axialThickness(slab, scale, c)
	}
	return best * 1000
}

// localSlope fits a line to the upper boundary's valid samples around
// column c, in physical millimetre coordinates.
func localSlope(upper oct.Curve, scale oct.Scale, c int) (float64, bool) {
	var xs, ys []float64
	for i := c - slopeWindow; i <= c+slopeWindow; i++ {
		if i < 0 || !upper.Valid(i) {
			continue
		}
		xs = append(xs, float64(i)*scale.X)
		ys = append(ys, upper.Rows[i]*scale.Y)
	}
	if len(xs) < 2 {
		return 0, false
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) {
		return 0, false
	}
	return beta, true
}

// raySegment intersects the ray p + t*d, t >= 0 with the segment ab
// and reports the ray parameter t, which is the travelled distance for
// a unit direction.
func raySegment(px, py, dx, dy, ax, ay, bx, by float64) (float64, bool) {
	sx, sy := bx-ax, by-ay
	denom := dx*sy - dy*sx
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}
	qx, qy := ax-px, ay-py
	t := (qx*sy - qy*sx) / denom
	s := (qx*dy - qy*dx) / -denom
	if t < 0 || s < -1e-9 || s > 1+1e-9 {
		return 0, false
	}
	return t, true
}

// MovingAverage smooths a profile with a centred window, ignoring
// missing samples. Missing positions stay missing, and an even window
// is widened to the next odd size so the window stays centred.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	if window%2 == 0 {
		window++
	}
	half := window / 2
	for i, v := range values {
		if oct.IsMissing(v) {
			out[i] = v
			continue
		}
		sum, n := 0.0, 0
		for j := i - half; j <= i+half; j++ {
			if j < 0 || j >= len(values) || oct.IsMissing(values[j]) {
				continue
			}
			sum += values[j]
			n++
		}
		out[i] = sum / float64(n)
	}
	return out
}
