package grid

import (
	"math"

	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

// sectorNames lists the peripapillary subfields in reporting order:
// the temporal and nasal 90 degree sectors and the four 45 degree
// sectors between them.
var sectorNames = [...]string{
	"temporal", "supero_temporal", "supero_nasal",
	"nasal", "infero_nasal", "infero_temporal",
}

// sectorOf maps a temporal-oriented angle in degrees to its sector
// slot. Cutoffs sit at +/-45, +/-90 and +/-135 degrees, with the
// nasal sector wrapping across +/-180.
func sectorOf(deg float64) int {
	switch {
	case deg >= -45 && deg < 45:
		return 0
	case deg >= 45 && deg < 90:
		return 1
	case deg >= 90 && deg < 135:
		return 2
	case deg >= 135 || deg < -135:
		return 3
	case deg >= -135 && deg < -90:
		return 4
	default:
		return 5
	}
}

// TemporalAngle converts an image-space angle around the disc centre
// (radians, y growing downward) to the clinical convention: zero at
// the temporal horizon, positive toward superior. An unknown
// laterality is treated as a right eye.
func TemporalAngle(imageRad float64, lat oct.Laterality) float64 {
	mathDeg := -imageRad * 180 / math.Pi
	if lat == oct.Left {
		return wrap180(mathDeg)
	}
	return wrap180(180 - mathDeg)
}

// wrap180 wraps an angle in degrees to [-180, 180).
func wrap180(deg float64) float64 {
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// Sectors aggregates a circular thickness profile into the
// peripapillary subfields. anglesDeg holds the temporal-oriented
// angle of every profile column; shiftDeg rotates all sector
// boundaries by the measured disc decentration so the subfields stay
// anchored to the true disc centre. Alongside the six sectors it
// reports the papillomacular bundle, the nasal/temporal ratio and the
// whole-profile average.
func Sectors(values, anglesDeg []float64, shiftDeg, pmbHalfDeg float64, interpolate bool, log *runlog.Collector) []Measurement {
	var members [len(sectorNames)][]int
	var pmb, all []int
	for i := range values {
		if i >= len(anglesDeg) {
			break
		}
		a := wrap180(anglesDeg[i] - shiftDeg)
		members[sectorOf(a)] = append(members[sectorOf(a)], i)
		if math.Abs(a) <= pmbHalfDeg {
			pmb = append(pmb, i)
		}
		all = append(all, i)
	}

	out := make([]Measurement, 0, len(sectorNames)+3)
	for s, name := range sectorNames {
		out = append(out, aggregateProfile(VariantPeripapillary.String(), name,
			members[s], values, anglesDeg, interpolate, log))
	}
	out = append(out, aggregateProfile(VariantPeripapillary.String(), "PMB",
		pmb, values, anglesDeg, interpolate, log))
	out = append(out, ratioMeasurement("nasal_temporal_ratio", out[3], out[0]))
	out = append(out, aggregateProfile(VariantPeripapillary.String(), "all",
		all, values, anglesDeg, interpolate, log))
	return out
}

// ratioMeasurement divides two sector means. The result is undefined
// when either operand is, or when the denominator is zero.
func ratioMeasurement(name string, num, den Measurement) Measurement {
	m := Measurement{
		Grid:      num.Grid,
		Region:    name,
		Kind:      oct.KindRatio,
		Mean:      math.NaN(),
		AreaMM2:   math.NaN(),
		VolumeMM3: math.NaN(),
	}
	if num.Defined() && den.Defined() && den.Mean != 0 {
		m.Mean = num.Mean / den.Mean
	}
	return m
}

// aggregateProfile averages the member columns of one angular region,
// filling missing columns from the nearest valid member by circular
// angular distance first.
func aggregateProfile(gridName, region string, members []int, values, anglesDeg []float64, interpolate bool, log *runlog.Collector) Measurement {
	m := Measurement{
		Grid:      gridName,
		Region:    region,
		Kind:      oct.KindThickness,
		Mean:      math.NaN(),
		AreaMM2:   math.NaN(),
		VolumeMM3: math.NaN(),
	}
	if len(members) == 0 {
		m.MissingPct = 100
		log.Warnf("%.2f%% missing values in %s region in %s grid. No samples to interpolate from.",
			100.0, region, gridName)
		return m
	}

	var valid, missing []int
	for _, i := range members {
		if oct.IsMissing(values[i]) {
			missing = append(missing, i)
		} else {
			valid = append(valid, i)
		}
	}
	m.MissingPct = roundPct(100 * float64(len(missing)) / float64(len(members)))

	if len(valid) == 0 {
		log.Warnf("%.2f%% missing values in %s region in %s grid. No samples to interpolate from.",
			m.MissingPct, region, gridName)
		return m
	}

	filled := make(map[int]float64, len(missing))
	if len(missing) > 0 {
		if !interpolate {
			log.Warnf("%.2f%% missing values in %s region in %s grid. Interpolation disabled, averaging valid samples only.",
				m.MissingPct, region, gridName)
		} else {
			log.Warnf("%.2f%% missing values in %s region in %s grid. Interpolating using nearest neighbour.",
				m.MissingPct, region, gridName)
			for _, i := range missing {
				filled[i] = nearestByAngle(i, valid, values, anglesDeg)
			}
			m.Interpolated = true
		}
	}

	sum, n := 0.0, 0
	for _, i := range members {
		v := values[i]
		if oct.IsMissing(v) {
			fv, ok := filled[i]
			if !ok {
				continue
			}
			v = fv
		}
		sum += v
		n++
	}
	m.Mean = sum / float64(n)
	return m
}

// nearestByAngle returns the valid member value closest to column i
// by wrapped angular distance.
func nearestByAngle(i int, valid []int, values, anglesDeg []float64) float64 {
	best, bestDist := 0.0, math.Inf(1)
	for _, j := range valid {
		d := math.Abs(wrap180(anglesDeg[i] - anglesDeg[j]))
		if d < bestDist {
			bestDist = d
			best = values[j]
		}
	}
	return best
}

// Peripapillary2D lays the peripapillary subfields over a canvas for
// measuring en-face maps around the disc: the six angular sectors
// within the scan circle, minus a central disc of a third of the scan
// radius which is reported as its own region.
func Peripapillary2D(w, h int, center oct.Point, radiusPx, scaleMMPerPx, shiftDeg float64, lat oct.Laterality) Definition {
	def := Definition{Variant: VariantPeripapillary, W: w, H: h, ScaleMMPerPx: scaleMMPerPx}
	for _, name := range sectorNames {
		def.Regions = append(def.Regions, Region{Name: name, Mask: make([]bool, w*h)})
	}
	def.Regions = append(def.Regions, Region{Name: "central", Mask: make([]bool, w*h)})

	inner := radiusPx / 3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - center.X
			dy := float64(y) - center.Y
			r := math.Hypot(dx, dy)
			if r > radiusPx {
				continue
			}
			if r <= inner {
				def.Regions[len(sectorNames)].Mask[y*w+x] = true
				continue
			}
			a := wrap180(TemporalAngle(math.Atan2(dy, dx), lat) - shiftDeg)
			def.Regions[sectorOf(a)].Mask[y*w+x] = true
		}
	}
	return def
}
