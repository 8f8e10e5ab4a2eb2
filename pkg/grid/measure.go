package grid

import (
	"math"

	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

// MeasureMap aggregates a map over every region of the grid, plus the
// "all" aggregate covering the union of the subfields. Regions with
// some missing coverage are filled by nearest-neighbour interpolation
// from their own valid pixels before averaging; regions with no valid
// coverage stay undefined. The map itself is never modified, so
// measuring twice yields identical results.
func MeasureMap(m *oct.Map, def Definition, interpolate bool, log *runlog.Collector) []Measurement {
	pxArea := m.ScaleMMPerPx * m.ScaleMMPerPx
	union := make([]bool, m.W*m.H)

	out := make([]Measurement, 0, len(def.Regions)+1)
	for _, reg := range def.Regions {
		for i, in := range reg.Mask {
			if in {
				union[i] = true
			}
		}
		out = append(out, measureRegion(m, def.Variant.String(), reg.Name, reg.Mask, pxArea, interpolate, log))
	}

	// With no subfields the whole covered map is the region of
	// interest.
	if len(def.Regions) == 0 {
		for i := range union {
			union[i] = true
		}
	}
	out = append(out, measureRegion(m, def.Variant.String(), "all", union, pxArea, interpolate, log))
	return out
}

func measureRegion(m *oct.Map, gridName, region string, mask []bool, pxArea float64, interpolate bool, log *runlog.Collector) Measurement {
	meas := Measurement{
		Grid:      gridName,
		Region:    region,
		Kind:      m.Kind,
		Mean:      math.NaN(),
		AreaMM2:   math.NaN(),
		VolumeMM3: math.NaN(),
	}

	var members []int
	for i, in := range mask {
		if in && m.Inside[i] {
			members = append(members, i)
		}
	}
	if len(members) == 0 {
		meas.MissingPct = 100
		log.Warnf("no map coverage in %s region in %s grid.", region, gridName)
		return meas
	}

	var valid samples
	var missing []int
	for _, i := range members {
		x, y := i%m.W, i/m.W
		v := m.At(x, y)
		if oct.IsMissing(v) {
			missing = append(missing, i)
		} else {
			valid = append(valid, sample{X: float64(x), Y: float64(y), Value: v})
		}
	}
	meas.MissingPct = roundPct(100 * float64(len(missing)) / float64(len(members)))
	meas.AreaMM2 = float64(len(members)) * pxArea

	if len(valid) == 0 {
		log.Warnf("%.2f%% missing values in %s region in %s grid. No samples to interpolate from.",
			meas.MissingPct, region, gridName)
		return meas
	}

	sum, n := 0.0, 0
	for _, s := range valid {
		sum += s.Value
		n++
	}
	if len(missing) > 0 {
		if interpolate {
			log.Warnf("%.2f%% missing values in %s region in %s grid. Interpolating using nearest neighbour.",
				meas.MissingPct, region, gridName)
			filler := newSampler(valid)
			for _, i := range missing {
				v, _ := filler.nearest(float64(i%m.W), float64(i/m.W))
				sum += v
				n++
			}
			meas.Interpolated = true
		} else {
			log.Warnf("%.2f%% missing values in %s region in %s grid. Interpolation disabled, averaging valid pixels only.",
				meas.MissingPct, region, gridName)
		}
	}
	meas.Mean = sum / float64(n)
	if m.Kind == oct.KindThickness {
		meas.VolumeMM3 = meas.Mean / 1000 * meas.AreaMM2
	}
	return meas
}
