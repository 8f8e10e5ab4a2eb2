package oct

import "math"

// Missing returns the sentinel for an absent sample. Absent boundary
// points, thickness samples and map values are always NaN, never zero.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-sample sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Curve is one anatomical boundary trace in one B-scan: a row
// coordinate per column, or per angular position for circular scans.
type Curve struct {
	// Layer is the anatomical layer name (e.g. "ILM", "BM").
	Layer string

	// Rows holds the boundary row per column. Columns where
	// segmentation produced nothing hold the missing sentinel.
	Rows []float64
}

// Valid reports whether the curve has a sample at the given column.
func (c Curve) Valid(col int) bool {
	return col >= 0 && col < len(c.Rows) && !IsMissing(c.Rows[col])
}

// ValidCount returns the number of columns carrying a sample.
func (c Curve) ValidCount() int {
	n := 0
	for _, r := range c.Rows {
		if !IsMissing(r) {
			n++
		}
	}
	return n
}

// Slab is a named anatomical layer span bounded by two curves from the
// same B-scan. Upper and Lower are filtered to their shared valid
// columns; all other columns hold the missing sentinel in both.
type Slab struct {
	// Name identifies the span as "UPPER_LOWER", e.g. "ILM_BM".
	Name string

	// Upper is the inner (smaller-row) boundary.
	Upper Curve

	// Lower is the outer (larger-row) boundary.
	Lower Curve

	// Valid is the number of columns where both boundaries are present.
	Valid int

	// Inverted counts columns where the lower boundary sits above the
	// upper one. Such columns are flagged, not corrected.
	Inverted int
}

// Usable reports whether the slab has at least one valid column.
// An unusable slab measures as entirely missing, never as an error.
func (s Slab) Usable() bool { return s.Valid > 0 }

// Columns returns the column count of the slab's coordinate axis.
func (s Slab) Columns() int { return len(s.Upper.Rows) }

// Convention selects how the distance between two boundaries is measured.
type Convention int

const (
	// AxisAligned measures along the image's vertical axis.
	AxisAligned Convention = iota

	// LocallyNormal measures along the local normal of the upper
	// boundary, avoiding overestimation on sloped structures.
	LocallyNormal
)

// String returns the convention's name.
func (c Convention) String() string {
	if c == LocallyNormal {
		return "locally-normal"
	}
	return "axis-aligned"
}

// Profile is a calibrated thickness trace: one value in microns per
// column (or per angular position for circular scans).
type Profile struct {
	// Slab is the name of the slab the profile was measured from.
	Slab string

	// Values holds the thickness in microns per column, with the
	// missing sentinel where no valid boundary pair existed.
	Values []float64

	// Convention records how the distances were measured.
	Convention Convention

	// Scale is the physical pixel scale the values were produced with.
	Scale Scale

	// Angular marks profiles from circular scans, where the index axis
	// is angular position around the scan circle.
	Angular bool
}

// ValidCount returns the number of non-missing samples.
func (p Profile) ValidCount() int {
	n := 0
	for _, v := range p.Values {
		if !IsMissing(v) {
			n++
		}
	}
	return n
}

// MissingFraction returns the fraction of samples that are missing,
// in [0, 1]. An empty profile counts as entirely missing.
func (p Profile) MissingFraction() float64 {
	if len(p.Values) == 0 {
		return 1
	}
	return 1 - float64(p.ValidCount())/float64(len(p.Values))
}
