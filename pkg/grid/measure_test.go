package grid

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"octmeasure/pkg/oct"
)

// maskFor builds a region mask from explicit pixel coordinates.
func maskFor(w, h int, pixels ...[2]int) []bool {
	mask := make([]bool, w*h)
	for _, p := range pixels {
		mask[p[1]*w+p[0]] = true
	}
	return mask
}

// TestMeasureMapMeanAreaVolume verifies the aggregate statistics of a
// fully covered region
func TestMeasureMapMeanAreaVolume(t *testing.T) {
	m := oct.NewMap(10, 10, 0.1, oct.KindThickness)
	m.Set(0, 0, 100)
	m.Set(1, 0, 200)
	m.Set(0, 1, 300)
	m.Set(1, 1, 400)

	def := Definition{
		Variant:      VariantETDRS,
		W:            10,
		H:            10,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "central",
			Mask: maskFor(10, 10, [2]int{0, 0}, [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 1}),
		}},
	}

	out := MeasureMap(m, def, true, testCollector())

	if len(out) != 2 {
		t.Fatalf("Expected 2 measurements, got %d", len(out))
	}
	central := out[0]
	if central.Mean != 250 {
		t.Errorf("Expected mean 250, got %f", central.Mean)
	}
	if math.Abs(central.AreaMM2-0.04) > 1e-12 {
		t.Errorf("Expected area 0.04 mm2, got %f", central.AreaMM2)
	}
	if math.Abs(central.VolumeMM3-0.01) > 1e-12 {
		t.Errorf("Expected volume 0.01 mm3, got %f", central.VolumeMM3)
	}
	if central.MissingPct != 0 || central.Interpolated {
		t.Errorf("Expected a complete region, got %.2f%% missing, interpolated=%v",
			central.MissingPct, central.Interpolated)
	}

	// The union aggregate comes last and covers the same pixels here.
	all := out[1]
	if all.Region != "all" || all.Mean != 250 {
		t.Errorf("Expected all region with mean 250, got %s with %f", all.Region, all.Mean)
	}
}

// TestMeasureMapInterpolatesWithinRegion verifies missing pixels are
// filled from the region's own valid pixels, never from outside it
func TestMeasureMapInterpolatesWithinRegion(t *testing.T) {
	m := oct.NewMap(10, 10, 0.1, oct.KindThickness)
	m.Set(0, 0, 100)
	m.Set(2, 0, oct.Missing())
	// A covered pixel right next to the gap, outside the region.
	m.Set(3, 0, 999)

	def := Definition{
		Variant:      VariantETDRS,
		W:            10,
		H:            10,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "central",
			Mask: maskFor(10, 10, [2]int{0, 0}, [2]int{1, 0}, [2]int{2, 0}),
		}},
	}

	log := testCollector()
	out := MeasureMap(m, def, true, log)

	central := out[0]
	if central.Mean != 100 {
		t.Errorf("Expected the gap filled from inside the region, got mean %f", central.Mean)
	}
	if central.MissingPct != 50 {
		t.Errorf("Expected 50%% missing, got %.2f%%", central.MissingPct)
	}
	if !central.Interpolated {
		t.Error("Expected the region to be flagged as interpolated")
	}
	if math.Abs(central.AreaMM2-0.02) > 1e-12 {
		t.Errorf("Expected area 0.02 mm2, got %f", central.AreaMM2)
	}

	want := "50.00% missing values in central region in etdrs grid. Interpolating using nearest neighbour."
	found := false
	for _, e := range log.Entries() {
		if e.Message == want {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected warning %q, got %v", want, log.Entries())
	}

	// The outside pixel is not in any subfield, so the union skips it.
	all := out[1]
	if all.Mean != 100 {
		t.Errorf("Expected union mean 100, got %f", all.Mean)
	}
}

// TestMeasureMapInterpolationDisabled verifies gaps are left out of
// the average when interpolation is off
func TestMeasureMapInterpolationDisabled(t *testing.T) {
	m := oct.NewMap(10, 10, 0.1, oct.KindThickness)
	m.Set(0, 0, 100)
	m.Set(1, 0, 200)
	m.Set(3, 0, oct.Missing())

	def := Definition{
		Variant:      VariantETDRS,
		W:            10,
		H:            10,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "central",
			Mask: maskFor(10, 10, [2]int{0, 0}, [2]int{1, 0}, [2]int{3, 0}),
		}},
	}

	log := testCollector()
	out := MeasureMap(m, def, false, log)

	central := out[0]
	if central.Mean != 150 {
		t.Errorf("Expected mean of valid pixels 150, got %f", central.Mean)
	}
	if central.Interpolated {
		t.Error("Expected interpolation to stay off")
	}
	if central.MissingPct != 33.33 {
		t.Errorf("Expected 33.33%% missing, got %.2f%%", central.MissingPct)
	}
	found := false
	for _, e := range log.Entries() {
		if strings.Contains(e.Message, "Interpolation disabled, averaging valid pixels only.") {
			found = true
		}
	}
	if !found {
		t.Error("Expected a warning about disabled interpolation")
	}

	// With interpolation on, the gap copies its nearest valid pixel.
	out = MeasureMap(m, def, true, testCollector())
	if math.Abs(out[0].Mean-500.0/3) > 1e-9 {
		t.Errorf("Expected interpolated mean %f, got %f", 500.0/3, out[0].Mean)
	}
}

// TestMeasureMapNoCoverage verifies regions the scan never touched
// stay undefined
func TestMeasureMapNoCoverage(t *testing.T) {
	m := oct.NewMap(10, 10, 0.1, oct.KindThickness)
	m.Set(0, 0, 100)

	def := Definition{
		Variant:      VariantETDRS,
		W:            10,
		H:            10,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "outer_nasal",
			Mask: maskFor(10, 10, [2]int{8, 8}, [2]int{9, 9}),
		}},
	}

	log := testCollector()
	out := MeasureMap(m, def, true, log)

	reg := out[0]
	if reg.Defined() {
		t.Errorf("Expected an undefined measurement, got mean %f", reg.Mean)
	}
	if reg.MissingPct != 100 {
		t.Errorf("Expected 100%% missing, got %.2f%%", reg.MissingPct)
	}
	if !math.IsNaN(reg.AreaMM2) {
		t.Errorf("Expected undefined area without coverage, got %f", reg.AreaMM2)
	}
	want := "no map coverage in outer_nasal region in etdrs grid."
	found := false
	for _, e := range log.Entries() {
		if e.Message == want {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected warning %q, got %v", want, log.Entries())
	}
}

// TestMeasureMapAllMissing verifies a covered but fully missing
// region keeps its area while the mean stays undefined
func TestMeasureMapAllMissing(t *testing.T) {
	m := oct.NewMap(10, 10, 0.1, oct.KindThickness)
	m.Set(4, 4, oct.Missing())
	m.Set(5, 4, oct.Missing())

	def := Definition{
		Variant:      VariantSquare,
		W:            10,
		H:            10,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "4.5",
			Mask: maskFor(10, 10, [2]int{4, 4}, [2]int{5, 4}),
		}},
	}

	log := testCollector()
	out := MeasureMap(m, def, true, log)

	reg := out[0]
	if reg.Defined() {
		t.Errorf("Expected an undefined mean, got %f", reg.Mean)
	}
	if reg.MissingPct != 100 {
		t.Errorf("Expected 100%% missing, got %.2f%%", reg.MissingPct)
	}
	if math.Abs(reg.AreaMM2-0.02) > 1e-12 {
		t.Errorf("Expected area 0.02 mm2, got %f", reg.AreaMM2)
	}
	found := false
	for _, e := range log.Entries() {
		if strings.Contains(e.Message, "No samples to interpolate from.") {
			found = true
		}
	}
	if !found {
		t.Error("Expected a warning about having no samples to interpolate from")
	}
}

// TestMeasureMapRatioKind verifies density maps report no volume
func TestMeasureMapRatioKind(t *testing.T) {
	m := oct.NewMap(4, 4, 0.1, oct.KindRatio)
	m.Set(0, 0, 1)
	m.Set(1, 0, 0)

	def := Definition{
		Variant:      VariantETDRS,
		W:            4,
		H:            4,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "central",
			Mask: maskFor(4, 4, [2]int{0, 0}, [2]int{1, 0}),
		}},
	}

	out := MeasureMap(m, def, true, testCollector())

	if out[0].Mean != 0.5 {
		t.Errorf("Expected density 0.5, got %f", out[0].Mean)
	}
	if !math.IsNaN(out[0].VolumeMM3) {
		t.Errorf("Expected no volume for a ratio map, got %f", out[0].VolumeMM3)
	}
	if out[0].Kind != oct.KindRatio {
		t.Errorf("Expected ratio kind, got %v", out[0].Kind)
	}
}

// TestMeasureMapNoRegions verifies the whole covered map is measured
// when the grid has no subfields
func TestMeasureMapNoRegions(t *testing.T) {
	m := oct.NewMap(5, 5, 0.1, oct.KindThickness)
	m.Set(0, 0, 1)
	m.Set(1, 0, 2)
	m.Set(2, 0, 3)

	def := Definition{Variant: VariantETDRS, W: 5, H: 5, ScaleMMPerPx: 0.1}

	out := MeasureMap(m, def, true, testCollector())

	if len(out) != 1 {
		t.Fatalf("Expected a single aggregate measurement, got %d", len(out))
	}
	if out[0].Region != "all" || out[0].Mean != 2 {
		t.Errorf("Expected all region with mean 2, got %s with %f", out[0].Region, out[0].Mean)
	}
}

// TestMeasureMapDoesNotMutate verifies measuring leaves the map
// unchanged, so repeated measurements agree
func TestMeasureMapDoesNotMutate(t *testing.T) {
	m := oct.NewMap(10, 10, 0.1, oct.KindThickness)
	m.Set(0, 0, 100)
	m.Set(2, 0, oct.Missing())

	def := Definition{
		Variant:      VariantETDRS,
		W:            10,
		H:            10,
		ScaleMMPerPx: 0.1,
		Regions: []Region{{
			Name: "central",
			Mask: maskFor(10, 10, [2]int{0, 0}, [2]int{2, 0}),
		}},
	}

	first := MeasureMap(m, def, true, testCollector())
	if !oct.IsMissing(m.At(2, 0)) {
		t.Errorf("Expected the map to keep its gap, got %f", m.At(2, 0))
	}
	second := MeasureMap(m, def, true, testCollector())

	for i := range first {
		a, b := first[i], second[i]
		if fmt.Sprintf("%v", a) != fmt.Sprintf("%v", b) {
			t.Errorf("Expected identical measurements, got %+v and %+v", a, b)
		}
	}
}
