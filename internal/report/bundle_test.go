package report

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"octmeasure/pkg/grid"
	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

func testBundle(dir string) *Bundle {
	return &Bundle{
		Dir: dir,
		Metadata: FileMetadata{
			Filename:   "scan.json",
			AnalysisID: "run-1",
			AnalysedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
			Pattern:    "macular_volume",
			Eye:        "right",
		},
		Measurements: []grid.Measurement{
			{
				Slab: "ILM_BM", Grid: "etdrs", Region: "central",
				Kind: oct.KindThickness,
				Mean: 250, AreaMM2: 0.04, VolumeMM3: 0.01, MissingPct: 0,
			},
			{
				Slab: "ILM_BM", Grid: "etdrs", Region: "outer_nasal",
				Kind: oct.KindThickness,
				Mean: math.NaN(), AreaMM2: math.NaN(), VolumeMM3: math.NaN(), MissingPct: 100,
			},
			{
				Slab: "vessel_density", Grid: "etdrs", Region: "all",
				Kind: oct.KindRatio,
				Mean: 0.5, AreaMM2: 0.04, VolumeMM3: math.NaN(), MissingPct: 12.5,
				Interpolated: true,
			},
		},
	}
}

// TestBundleWrite verifies the bundle files land on disk in record
// order
func TestBundleWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scan")
	b := testBundle(dir)

	c := runlog.New(zerolog.Nop(), "scan.json")
	c.Infof("registered")
	c.Warnf("fovea missing")
	b.Entries = c.Entries()

	files, err := b.Write(false)
	if err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
	want := []string{MetadataFile, MeasurementsFile, LogFile}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %d", len(want), len(files))
	}
	for i, f := range files {
		if f != want[i] {
			t.Errorf("File %d: expected %s, got %s", i, want[i], f)
		}
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("Expected %s on disk: %v", f, err)
		}
	}

	logData, err := os.ReadFile(filepath.Join(dir, LogFile))
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if !strings.Contains(string(logData), "[scan.json] fovea missing") {
		t.Errorf("Expected the warning in the log file, got %q", string(logData))
	}
}

// TestBundleMeasurementsRoundTrip verifies the measurement table
// loads back with undefined cells intact
func TestBundleMeasurementsRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scan")
	b := testBundle(dir)

	if _, err := b.Write(false); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}

	loaded, err := LoadMeasurements(dir)
	if err != nil {
		t.Fatalf("Failed to load measurements: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 measurements, got %d", len(loaded))
	}

	central := loaded[0]
	if central.Slab != "ILM_BM" || central.Grid != "etdrs" || central.Region != "central" {
		t.Errorf("Expected ILM_BM etdrs central, got %s %s %s", central.Slab, central.Grid, central.Region)
	}
	if central.Kind != oct.KindThickness || central.Mean != 250 {
		t.Errorf("Expected thickness 250, got %v %f", central.Kind, central.Mean)
	}
	if central.AreaMM2 != 0.04 || central.VolumeMM3 != 0.01 {
		t.Errorf("Expected area 0.04 and volume 0.01, got %f and %f", central.AreaMM2, central.VolumeMM3)
	}

	undefined := loaded[1]
	if undefined.Defined() {
		t.Errorf("Expected an undefined mean, got %f", undefined.Mean)
	}
	if !math.IsNaN(undefined.AreaMM2) || !math.IsNaN(undefined.VolumeMM3) {
		t.Errorf("Expected undefined area and volume, got %f and %f",
			undefined.AreaMM2, undefined.VolumeMM3)
	}
	if undefined.MissingPct != 100 {
		t.Errorf("Expected 100%% missing, got %.2f%%", undefined.MissingPct)
	}

	density := loaded[2]
	if density.Kind != oct.KindRatio || density.Mean != 0.5 {
		t.Errorf("Expected ratio 0.5, got %v %f", density.Kind, density.Mean)
	}
	if !density.Interpolated {
		t.Error("Expected the interpolated flag to survive")
	}
	if density.MissingPct != 12.5 {
		t.Errorf("Expected 12.5%% missing, got %.2f%%", density.MissingPct)
	}
}

// TestBundleWriteImages verifies images are written only when asked
func TestBundleWriteImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scan")
	b := testBundle(dir)
	b.Images = map[string]image.Image{
		"map_ILM_BM.jpg": image.NewRGBA(image.Rect(0, 0, 8, 8)),
	}

	files, err := b.Write(true)
	if err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
	found := false
	for _, f := range files {
		if f == "map_ILM_BM.jpg" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected the map image in the file list, got %v", files)
	}
	if _, err := os.Stat(filepath.Join(dir, "map_ILM_BM.jpg")); err != nil {
		t.Errorf("Expected the image on disk: %v", err)
	}

	plain := filepath.Join(t.TempDir(), "plain")
	b2 := testBundle(plain)
	b2.Images = b.Images
	if _, err := b2.Write(false); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
	if _, err := os.Stat(filepath.Join(plain, "map_ILM_BM.jpg")); !os.IsNotExist(err) {
		t.Error("Expected no image when saving is disabled")
	}
}

// TestLoadMeasurementsMissingBundle verifies a missing table reports
// an error
func TestLoadMeasurementsMissingBundle(t *testing.T) {
	if _, err := LoadMeasurements(t.TempDir()); err == nil {
		t.Fatal("Expected an error for a missing measurements table")
	}
}
