package grid

import (
	"math"
	"testing"

	"octmeasure/pkg/oct"
)

var etdrsDiameters = []float64{1000, 3000, 6000}

// TestETDRSRegions verifies the nine subfields and their laterality
// dependent naming
func TestETDRSRegions(t *testing.T) {
	def := ETDRS(700, 700, oct.Point{X: 350, Y: 350}, 0.01, etdrsDiameters, oct.Right)

	expected := []string{
		"central",
		"inner_superior", "inner_temporal", "inner_inferior", "inner_nasal",
		"outer_superior", "outer_temporal", "outer_inferior", "outer_nasal",
	}
	if len(def.Regions) != len(expected) {
		t.Fatalf("Expected %d regions, got %d", len(expected), len(def.Regions))
	}
	for i, name := range expected {
		if def.Regions[i].Name != name {
			t.Errorf("Expected region %d to be %s, got %s", i, name, def.Regions[i].Name)
		}
	}

	// A left eye mirrors the horizontal subfields.
	left := ETDRS(700, 700, oct.Point{X: 350, Y: 350}, 0.01, etdrsDiameters, oct.Left)
	if left.Regions[2].Name != "inner_nasal" || left.Regions[4].Name != "inner_temporal" {
		t.Errorf("Expected mirrored subfields for a left eye, got %s and %s",
			left.Regions[2].Name, left.Regions[4].Name)
	}
}

// TestETDRSMembership verifies ring and quadrant assignment at known
// offsets from the grid centre
func TestETDRSMembership(t *testing.T) {
	// 10 micron pixels: ring radii at 50, 150 and 300 pixels.
	def := ETDRS(700, 700, oct.Point{X: 350, Y: 350}, 0.01, etdrsDiameters, oct.Right)

	cases := []struct {
		x, y   int
		region string
	}{
		{350, 350, "central"},
		{350, 340, "central"},
		{350, 250, "inner_superior"},  // 100 px above centre
		{250, 350, "inner_temporal"},  // 100 px left, right eye
		{350, 450, "inner_inferior"},  // 100 px below
		{450, 350, "inner_nasal"},     // 100 px right
		{350, 550, "outer_inferior"},  // 200 px below
		{150, 350, "outer_temporal"},  // 200 px left
	}
	for _, c := range cases {
		reg := regionByName(t, def, c.region)
		if !reg.Mask[c.y*700+c.x] {
			t.Errorf("Expected pixel (%d,%d) in %s", c.x, c.y, c.region)
		}
	}

	// Outside the outer diameter no subfield claims the pixel.
	for _, reg := range def.Regions {
		if reg.Mask[350*700+660] {
			t.Errorf("Expected pixel (660,350) outside the grid, found in %s", reg.Name)
		}
	}
}

// TestETDRSDisjointCoverage verifies the subfields partition the grid
// circle exactly
func TestETDRSDisjointCoverage(t *testing.T) {
	w, h := 700, 700
	center := oct.Point{X: 350, Y: 350}
	def := ETDRS(w, h, center, 0.01, etdrsDiameters, oct.Right)

	outer := 300.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for _, reg := range def.Regions {
				if reg.Mask[y*w+x] {
					n++
				}
			}
			r := math.Hypot(float64(x)-center.X, float64(y)-center.Y)
			if r <= outer {
				if n != 1 {
					t.Fatalf("Expected pixel (%d,%d) in exactly one subfield, got %d", x, y, n)
				}
			} else if n != 0 {
				t.Fatalf("Expected pixel (%d,%d) outside the grid, got %d subfields", x, y, n)
			}
		}
	}
}

// TestETDRSArea verifies the subfield areas sum to the 6 mm circle
func TestETDRSArea(t *testing.T) {
	def := ETDRS(700, 700, oct.Point{X: 350, Y: 350}, 0.01, etdrsDiameters, oct.Right)

	pxArea := 0.01 * 0.01
	total := 0.0
	for _, reg := range def.Regions {
		for _, in := range reg.Mask {
			if in {
				total += pxArea
			}
		}
	}

	expected := math.Pi * 3 * 3
	if math.Abs(total-expected) > 0.15 {
		t.Errorf("Expected total area near %.3f mm2, got %.3f", expected, total)
	}
}

// TestETDRSClipping verifies subfields overhanging the canvas are
// silently clipped
func TestETDRSClipping(t *testing.T) {
	// The centre sits near the left edge: the temporal subfields are
	// mostly off-canvas.
	def := ETDRS(400, 400, oct.Point{X: 50, Y: 200}, 0.01, etdrsDiameters, oct.Right)

	nasal := regionByName(t, def, "outer_nasal")
	count := 0
	for _, in := range nasal.Mask {
		if in {
			count++
		}
	}
	if count == 0 {
		t.Error("Expected the on-canvas nasal subfield to survive clipping")
	}

	temporal := regionByName(t, def, "outer_temporal")
	tcount := 0
	for _, in := range temporal.Mask {
		if in {
			tcount++
		}
	}
	if tcount >= count {
		t.Errorf("Expected the clipped temporal subfield to be smaller: %d >= %d", tcount, count)
	}
}
