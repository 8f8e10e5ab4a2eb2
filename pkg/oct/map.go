package oct

// MapKind distinguishes maps whose values are physical thicknesses
// from dimensionless ratio maps. Only thickness maps are ever scaled
// into region volumes.
type MapKind int

const (
	// KindThickness marks maps holding micron values.
	KindThickness MapKind = iota

	// KindRatio marks dimensionless maps such as vessel density.
	KindRatio
)

// String returns the kind's name.
func (k MapKind) String() string {
	if k == KindRatio {
		return "ratio"
	}
	return "thickness"
}

// ParseMapKind is the inverse of String. Unrecognised names parse as
// thickness.
func ParseMapKind(s string) MapKind {
	if s == "ratio" {
		return KindRatio
	}
	return KindThickness
}

// Map is a scalar en-face field sampled on the registered canvas.
// Values inside the scanned region are either finite or the missing
// sentinel (segmentation gaps); pixels outside the scanned region are
// excluded from every statistic regardless of value.
type Map struct {
	// W, H are the canvas dimensions in pixels.
	W, H int

	// Values holds one sample per pixel in row-major order.
	Values []float64

	// Inside marks the pixels covered by the scan.
	Inside []bool

	// ScaleMMPerPx is the canvas scale in mm per pixel.
	ScaleMMPerPx float64

	// Kind records whether values are thicknesses or ratios.
	Kind MapKind
}

// NewMap returns a map of the given size with every pixel missing and
// outside the scanned region.
func NewMap(w, h int, scaleMMPerPx float64, kind MapKind) *Map {
	m := &Map{
		W:            w,
		H:            h,
		Values:       make([]float64, w*h),
		Inside:       make([]bool, w*h),
		ScaleMMPerPx: scaleMMPerPx,
		Kind:         kind,
	}
	missing := Missing()
	for i := range m.Values {
		m.Values[i] = missing
	}
	return m
}

// Idx returns the row-major index of pixel (x, y).
func (m *Map) Idx(x, y int) int { return y*m.W + x }

// InBounds reports whether (x, y) lies on the canvas.
func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && x < m.W && y >= 0 && y < m.H
}

// At returns the sample at (x, y).
func (m *Map) At(x, y int) float64 { return m.Values[m.Idx(x, y)] }

// Set stores a sample at (x, y) and marks the pixel as scanned.
func (m *Map) Set(x, y int, v float64) {
	i := m.Idx(x, y)
	m.Values[i] = v
	m.Inside[i] = true
}

// InsideCount returns the number of pixels covered by the scan.
func (m *Map) InsideCount() int {
	n := 0
	for _, in := range m.Inside {
		if in {
			n++
		}
	}
	return n
}
