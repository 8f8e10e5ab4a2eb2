// Package grid lays measurement grids over en-face maps and circular
// profiles and aggregates values per region: the ETDRS macular
// subfields, the posterior pole square grid, peripapillary angular
// sectors and the linear fovea-centred windows, all under a shared
// missing-data policy.
package grid

import (
	"math"

	"octmeasure/pkg/oct"
)

// Variant enumerates the grid layouts.
type Variant int

const (
	VariantNone Variant = iota
	VariantETDRS
	VariantSquare
	VariantPeripapillary
	VariantLinear
)

// String returns the grid name used in log messages and output keys.
func (v Variant) String() string {
	switch v {
	case VariantETDRS:
		return "etdrs"
	case VariantSquare:
		return "square"
	case VariantPeripapillary:
		return "peripapillary"
	case VariantLinear:
		return "linear"
	default:
		return "none"
	}
}

// ForPattern returns the grid measured for an acquisition pattern.
func ForPattern(p oct.ScanPattern) Variant {
	switch p {
	case oct.PatternMacularVolume:
		return VariantETDRS
	case oct.PatternPosteriorPole:
		return VariantSquare
	case oct.PatternPeripapillary:
		return VariantPeripapillary
	case oct.PatternHLine, oct.PatternVLine, oct.PatternRadial:
		return VariantLinear
	default:
		return VariantNone
	}
}

// Region is one labeled subfield of a grid, as a canvas-sized pixel
// mask.
type Region struct {
	// Name labels the subfield in output keys.
	Name string

	// Mask marks member pixels, row-major over the canvas.
	Mask []bool
}

// Definition is a grid laid out on a concrete canvas.
type Definition struct {
	// Variant identifies the layout.
	Variant Variant

	// W and H are the canvas dimensions the masks cover.
	W, H int

	// ScaleMMPerPx is the lateral canvas scale.
	ScaleMMPerPx float64

	// Regions holds the subfields in reporting order.
	Regions []Region
}

// Measurement is one aggregated value: a region of a grid measured
// over one map or profile.
type Measurement struct {
	// Grid is the grid name ("etdrs", "square", ...).
	Grid string

	// Region is the subfield label within the grid.
	Region string

	// Slab names the layer slab, or the vessel map, the value was
	// measured from.
	Slab string

	// Kind distinguishes thickness from ratio measurements.
	Kind oct.MapKind

	// Mean is the region average: micrometres for thickness, a
	// dimensionless fraction for ratios. NaN when the region had no
	// usable samples.
	Mean float64

	// AreaMM2 is the region area. NaN for profile-based grids.
	AreaMM2 float64

	// VolumeMM3 is mean times area for thickness maps. NaN for ratio
	// maps and profile-based grids.
	VolumeMM3 float64

	// MissingPct is the percentage of region samples that were
	// missing before interpolation.
	MissingPct float64

	// Interpolated reports whether missing samples were filled before
	// averaging.
	Interpolated bool
}

// Defined reports whether the measurement carries a usable value.
// Undefined measurements stay NaN so they can never be mistaken for a
// true zero.
func (m Measurement) Defined() bool {
	return !math.IsNaN(m.Mean)
}

// roundPct mirrors the two-decimal rounding used when reporting
// missing percentages.
func roundPct(p float64) float64 {
	return math.Round(p*100) / 100
}
