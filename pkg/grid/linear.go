package grid

import (
	"fmt"
	"math"

	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

// Linear aggregates a single-line thickness profile into
// fovea-centred windows: the subfoveal column, one window per
// configured half-width, and the full line as an auxiliary region.
// When the fovea column is unknown only the full line is measured.
func Linear(values []float64, foveaCol int, distancesUm []float64, scale oct.Scale, interpolate bool, log *runlog.Collector) []Measurement {
	gridName := VariantLinear.String()
	all := make([]int, len(values))
	for i := range all {
		all[i] = i
	}

	var out []Measurement
	if foveaCol < 0 || foveaCol >= len(values) {
		log.Warnf("fovea location unknown, measuring the whole line only")
		out = append(out, aggregateLine(gridName, "whole_line", all, values, interpolate, log))
		return out
	}

	out = append(out, aggregateLine(gridName, "subfoveal", []int{foveaCol}, values, interpolate, log))
	for _, d := range distancesUm {
		halfCols := int(math.Round(d / 1000 / scale.X))
		lo := foveaCol - halfCols
		hi := foveaCol + halfCols
		if lo < 0 {
			lo = 0
		}
		if hi > len(values)-1 {
			hi = len(values) - 1
		}
		members := make([]int, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			members = append(members, i)
		}
		name := fmt.Sprintf("fovea_%dum", int(d))
		out = append(out, aggregateLine(gridName, name, members, values, interpolate, log))
	}
	out = append(out, aggregateLine(gridName, "whole_line", all, values, interpolate, log))
	return out
}

// aggregateLine averages the member columns of one line window,
// filling missing columns from the nearest valid member by column
// distance first.
func aggregateLine(gridName, region string, members []int, values []float64, interpolate bool, log *runlog.Collector) Measurement {
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

	sum, n := 0.0, 0
	if len(missing) > 0 && interpolate {
		log.Warnf("%.2f%% missing values in %s region in %s grid. Interpolating using nearest neighbour.",
			m.MissingPct, region, gridName)
		m.Interpolated = true
	} else if len(missing) > 0 {
		log.Warnf("%.2f%% missing values in %s region in %s grid. Interpolation disabled, averaging valid samples only.",
			m.MissingPct, region, gridName)
	}
	for _, i := range members {
		v := values[i]
		if oct.IsMissing(v) {
			if !interpolate {
				continue
			}
			v = values[nearestColumn(i, valid)]
		}
		sum += v
		n++
	}
	m.Mean = sum / float64(n)
	return m
}

// nearestColumn returns the valid member index closest to column i.
func nearestColumn(i int, valid []int) int {
	best, bestDist := valid[0], math.MaxInt
	for _, j := range valid {
		d := j - i
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}
