package report

import (
	"encoding/csv"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"octmeasure/pkg/grid"
	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

// Bundle file names. The completion record is written separately,
// after everything here succeeded.
const (
	MetadataFile     = "metadata.csv"
	MeasurementsFile = "measurements.csv"
	LogFile          = "log.txt"
)

// measurementsHeader is the column order of measurements.csv.
var measurementsHeader = []string{
	"slab", "grid", "region", "kind",
	"mean", "area_mm2", "volume_mm3", "missing_pct", "interpolated",
}

// Bundle is everything one analysed file produces.
type Bundle struct {
	// Dir is the bundle directory, one per input file.
	Dir string

	// Metadata describes the analysed file.
	Metadata FileMetadata

	// Measurements holds every grid measurement of the run.
	Measurements []grid.Measurement

	// Entries is the ordered run log.
	Entries []runlog.Entry

	// Images maps output file names to rendered images.
	Images map[string]image.Image
}

// Write persists the bundle files and returns their names for the
// completion record. Images are skipped when saveImages is false.
func (b *Bundle) Write(saveImages bool) ([]string, error) {
	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}

	var files []string

	mw, err := NewCSVWriter(filepath.Join(b.Dir, MetadataFile), b.Metadata.Header())
	if err != nil {
		return nil, err
	}
	mw.WriteRow(b.Metadata.Row())
	if err := mw.Close(); err != nil {
		return nil, err
	}
	files = append(files, MetadataFile)

	vw, err := NewCSVWriter(filepath.Join(b.Dir, MeasurementsFile), measurementsHeader)
	if err != nil {
		return nil, err
	}
	for _, m := range b.Measurements {
		vw.WriteRow([]string{
			m.Slab,
			m.Grid,
			m.Region,
			m.Kind.String(),
			FormatMean(m),
			formatFloat(m.AreaMM2, 3),
			FormatVolume(m),
			formatFloat(m.MissingPct, 2),
			strconv.FormatBool(m.Interpolated),
		})
	}
	if err := vw.Close(); err != nil {
		return nil, err
	}
	files = append(files, MeasurementsFile)

	var log strings.Builder
	for _, e := range b.Entries {
		log.WriteString(e.Format())
		log.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(b.Dir, LogFile), []byte(log.String()), 0644); err != nil {
		return nil, fmt.Errorf("failed to write log: %w", err)
	}
	files = append(files, LogFile)

	if saveImages {
		for name, img := range b.Images {
			if err := SaveImage(filepath.Join(b.Dir, name), img); err != nil {
				return nil, err
			}
			files = append(files, name)
		}
	}
	return files, nil
}

// LoadMeasurements reads a bundle's measurement table back, for reuse
// of previously analysed files. Empty cells load as undefined values.
func LoadMeasurements(dir string) ([]grid.Measurement, error) {
	f, err := os.Open(filepath.Join(dir, MeasurementsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse measurements: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("measurements table is empty")
	}

	var out []grid.Measurement
	for _, row := range rows[1:] {
		if len(row) != len(measurementsHeader) {
			return nil, fmt.Errorf("measurement row has %d columns, want %d", len(row), len(measurementsHeader))
		}
		m := grid.Measurement{
			Slab:       row[0],
			Grid:       row[1],
			Region:     row[2],
			Kind:       oct.ParseMapKind(row[3]),
			Mean:       parseCell(row[4]),
			AreaMM2:    parseCell(row[5]),
			VolumeMM3:  parseCell(row[6]),
			MissingPct: parseCell(row[7]),
		}
		m.Interpolated, _ = strconv.ParseBool(row[8])
		out = append(out, m)
	}
	return out, nil
}

// parseCell reads a float cell, mapping the empty cell back to the
// undefined sentinel.
func parseCell(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
