package grid

import (
	"math"
	"sort"

	"octmeasure/pkg/oct"
)

// ETDRS lays the macular subfield grid on a canvas: a central disc
// and two concentric rings split into quadrants along the 45 degree
// diagonals. The three diameters are in micrometres, central first.
// Quadrant naming follows laterality, with the temporal subfields on
// the left of the image for a right eye; an unknown laterality is
// reported as a right eye. Subfields overhanging the canvas are
// clipped.
func ETDRS(w, h int, center oct.Point, scaleMMPerPx float64, diametersUm []float64, lat oct.Laterality) Definition {
	diameters := append([]float64(nil), diametersUm...)
	sort.Float64s(diameters)

	// Radii in canvas pixels.
	radii := make([]float64, len(diameters))
	for i, d := range diameters {
		radii[i] = d / 2 / 1000 / scaleMMPerPx
	}

	locs := quadrantNames(lat)
	def := Definition{Variant: VariantETDRS, W: w, H: h, ScaleMMPerPx: scaleMMPerPx}
	def.Regions = append(def.Regions, Region{Name: "central", Mask: make([]bool, w*h)})
	for _, ring := range []string{"inner", "outer"} {
		for _, loc := range locs {
			def.Regions = append(def.Regions, Region{Name: ring + "_" + loc, Mask: make([]bool, w*h)})
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - center.X
			dy := float64(y) - center.Y
			r := math.Hypot(dx, dy)
			if r > radii[2] {
				continue
			}
			idx := 0
			if r > radii[0] {
				ring := 1
				if r > radii[1] {
					ring = 2
				}
				idx = 1 + 4*(ring-1) + quadrant(dx, dy)
			}
			def.Regions[idx].Mask[y*w+x] = true
		}
	}
	return def
}

// quadrant maps an offset from the grid centre to a mask slot:
// 0 superior, 1 left, 2 inferior, 3 right, split along the diagonals.
func quadrant(dx, dy float64) int {
	if math.Abs(dy) >= math.Abs(dx) {
		if dy < 0 {
			return 0
		}
		return 2
	}
	if dx < 0 {
		return 1
	}
	return 3
}

// quadrantNames returns the subfield labels in mask-slot order for
// the given eye.
func quadrantNames(lat oct.Laterality) [4]string {
	if lat == oct.Left {
		return [4]string{"superior", "nasal", "inferior", "temporal"}
	}
	return [4]string{"superior", "temporal", "inferior", "nasal"}
}
