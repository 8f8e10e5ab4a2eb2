package grid

import (
	"math"
	"strings"
	"testing"

	"octmeasure/pkg/oct"
)

// TestSectorOf verifies the angular cutoffs between subfields
func TestSectorOf(t *testing.T) {
	cases := []struct {
		deg      float64
		expected int
	}{
		{0, 0}, {-45, 0}, {44.9, 0},
		{45, 1}, {89.9, 1},
		{90, 2}, {134.9, 2},
		{135, 3}, {179.9, 3}, {-180, 3}, {-135.1, 3},
		{-135, 4}, {-90.1, 4},
		{-90, 5}, {-45.1, 5},
	}
	for _, c := range cases {
		if got := sectorOf(c.deg); got != c.expected {
			t.Errorf("Expected sector %d (%s) at %.1f degrees, got %d (%s)",
				c.expected, sectorNames[c.expected], c.deg, got, sectorNames[got])
		}
	}
}

// TestTemporalAngle verifies the image-to-clinical angle conversion
// for both eyes
func TestTemporalAngle(t *testing.T) {
	cases := []struct {
		imageRad float64
		lat      oct.Laterality
		expected float64
	}{
		// Right eye: the temporal horizon is the left of the image.
		{math.Pi, oct.Right, 0},
		{0, oct.Right, -180},
		{-math.Pi / 2, oct.Right, 90},
		{math.Pi / 2, oct.Right, -90},
		// Left eye: the temporal horizon is the right of the image.
		{0, oct.Left, 0},
		{math.Pi, oct.Left, -180},
		{-math.Pi / 2, oct.Left, 90},
		{math.Pi / 2, oct.Left, -90},
	}
	for _, c := range cases {
		got := TemporalAngle(c.imageRad, c.lat)
		if math.Abs(got-c.expected) > 1e-9 {
			t.Errorf("Expected %.1f degrees for image angle %.3f (%v), got %f",
				c.expected, c.imageRad, c.lat, got)
		}
	}
}

// TestSectorsAggregation verifies the per-sector means and the derived
// measurements over a profile with one column per sector
func TestSectorsAggregation(t *testing.T) {
	angles := []float64{0, 60, 120, 180, -120, -60}
	values := []float64{10, 20, 30, 40, 50, 60}

	out := Sectors(values, angles, 0, 15, true, testCollector())

	if len(out) != 9 {
		t.Fatalf("Expected 9 measurements, got %d", len(out))
	}

	// Six sectors in reporting order, then PMB, ratio and whole
	// profile.
	expected := []struct {
		region string
		mean   float64
	}{
		{"temporal", 10},
		{"supero_temporal", 20},
		{"supero_nasal", 30},
		{"nasal", 40},
		{"infero_nasal", 50},
		{"infero_temporal", 60},
		{"PMB", 10},
		{"nasal_temporal_ratio", 4},
		{"all", 35},
	}
	for i, e := range expected {
		if out[i].Region != e.region {
			t.Errorf("Expected measurement %d to be %s, got %s", i, e.region, out[i].Region)
		}
		if math.Abs(out[i].Mean-e.mean) > 1e-9 {
			t.Errorf("Expected mean %.1f in %s, got %f", e.mean, e.region, out[i].Mean)
		}
		if out[i].Grid != "peripapillary" {
			t.Errorf("Expected peripapillary grid name, got %s", out[i].Grid)
		}
	}

	if out[7].Kind != oct.KindRatio {
		t.Error("Expected the nasal/temporal ratio to be a ratio measurement")
	}
	if !math.IsNaN(out[0].AreaMM2) {
		t.Error("Expected no area for profile-based measurements")
	}
}

// TestSectorsDecentrationShift verifies that shifting the sector
// boundaries reassigns columns
func TestSectorsDecentrationShift(t *testing.T) {
	angles := []float64{0, 60, 120, 180, -120, -60}
	values := []float64{10, 20, 30, 40, 50, 60}

	out := Sectors(values, angles, 50, 15, true, testCollector())

	// With a 50 degree shift the column at 60 degrees lands in the
	// temporal sector and the column at 0 drops to infero-temporal.
	if out[0].Mean != 20 {
		t.Errorf("Expected shifted temporal mean 20, got %f", out[0].Mean)
	}
	if out[5].Mean != 10 {
		t.Errorf("Expected shifted infero-temporal mean 10, got %f", out[5].Mean)
	}
}

// TestSectorsInterpolation verifies nearest-neighbour filling within a
// sector and its warning message
func TestSectorsInterpolation(t *testing.T) {
	angles := []float64{-20, -10, 0, 10}
	values := []float64{100, oct.Missing(), 140, 160}
	log := testCollector()

	out := Sectors(values, angles, 0, 15, true, log)

	temporal := out[0]
	if temporal.MissingPct != 25 {
		t.Errorf("Expected 25%% missing, got %f", temporal.MissingPct)
	}
	if !temporal.Interpolated {
		t.Error("Expected the temporal sector to be interpolated")
	}
	// The missing column at -10 ties between -20 and 0; the first
	// valid member wins.
	if temporal.Mean != 125 {
		t.Errorf("Expected interpolated mean 125, got %f", temporal.Mean)
	}

	found := false
	for _, e := range log.Entries() {
		if e.Message == "25.00% missing values in temporal region in peripapillary grid. Interpolating using nearest neighbour." {
			found = true
		}
	}
	if !found {
		t.Error("Expected the nearest-neighbour interpolation warning")
	}

	// Sectors with no columns report as entirely missing, never zero.
	nasal := out[3]
	if nasal.Defined() {
		t.Errorf("Expected the empty nasal sector to be undefined, got %f", nasal.Mean)
	}
	if nasal.MissingPct != 100 {
		t.Errorf("Expected 100%% missing in the empty sector, got %f", nasal.MissingPct)
	}
}

// TestSectorsInterpolationDisabled verifies averaging over valid
// columns only
func TestSectorsInterpolationDisabled(t *testing.T) {
	angles := []float64{-20, -10, 0, 10}
	values := []float64{100, oct.Missing(), 140, 180}
	log := testCollector()

	out := Sectors(values, angles, 0, 15, false, log)

	if out[0].Interpolated {
		t.Error("Expected no interpolation when disabled")
	}
	if out[0].Mean != 140 {
		t.Errorf("Expected mean of valid columns 140, got %f", out[0].Mean)
	}

	found := false
	for _, e := range log.Entries() {
		if strings.Contains(e.Message, "Interpolation disabled, averaging valid samples only.") {
			found = true
		}
	}
	if !found {
		t.Error("Expected the interpolation-disabled warning")
	}
}

// TestRatioUndefined verifies the ratio stays undefined without both
// operands
func TestRatioUndefined(t *testing.T) {
	num := Measurement{Mean: 40}
	den := Measurement{Mean: math.NaN()}
	if ratioMeasurement("nasal_temporal_ratio", num, den).Defined() {
		t.Error("Expected ratio with undefined denominator to be undefined")
	}

	den.Mean = 0
	if ratioMeasurement("nasal_temporal_ratio", num, den).Defined() {
		t.Error("Expected ratio with zero denominator to be undefined")
	}

	den.Mean = 10
	r := ratioMeasurement("nasal_temporal_ratio", num, den)
	if r.Mean != 4 {
		t.Errorf("Expected ratio 4, got %f", r.Mean)
	}
}

// TestPeripapillary2D verifies the en-face sector layout around the
// disc
func TestPeripapillary2D(t *testing.T) {
	def := Peripapillary2D(200, 200, oct.Point{X: 100, Y: 100}, 60, 0.01, 0, oct.Right)

	if len(def.Regions) != 7 {
		t.Fatalf("Expected 6 sectors plus the central disc, got %d regions", len(def.Regions))
	}
	if def.Regions[6].Name != "central" {
		t.Errorf("Expected the last region to be central, got %s", def.Regions[6].Name)
	}

	cases := []struct {
		x, y   int
		region string
	}{
		{100, 100, "central"},       // disc centre
		{110, 100, "central"},       // within a third of the radius
		{60, 100, "temporal"},       // image left, right eye
		{140, 100, "nasal"},         // image right
		{100, 60, "supero_nasal"},   // straight up sits on the 90 cutoff
		{65, 65, "supero_temporal"}, // upper left diagonal
	}
	for _, c := range cases {
		reg := regionByName(t, def, c.region)
		if !reg.Mask[c.y*200+c.x] {
			t.Errorf("Expected pixel (%d,%d) in %s", c.x, c.y, c.region)
		}
	}

	// Beyond the scan circle no region claims the pixel.
	for _, reg := range def.Regions {
		if reg.Mask[100*200+170] {
			t.Errorf("Expected pixel (170,100) outside the scan circle, found in %s", reg.Name)
		}
	}
}
