package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"octmeasure/pkg/grid"
	"octmeasure/pkg/oct"
)

// CSVWriter is a concurrency-safe, buffered CSV writer. The mutex is
// held only for a single row encode, and flushing is left to the
// caller so row writes never block on I/O.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
}

// NewCSVWriter creates a file and writes the CSV header row.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}

	bw := bufio.NewWriterSize(f, 256*1024)
	cw := csv.NewWriter(bw)

	w := &CSVWriter{
		file: f,
		buf:  bw,
		csv:  cw,
	}

	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv write header: %w", err)
		}
	}

	return w, nil
}

// WriteRow appends a single CSV row. Thread-safe.
func (w *CSVWriter) WriteRow(row []string) {
	w.mu.Lock()
	_ = w.csv.Write(row) // error is buffered; checked on Close
	w.rows++
	w.mu.Unlock()
}

// Flush pushes the buffered data to the OS.
func (w *CSVWriter) Flush() {
	w.mu.Lock()
	w.csv.Flush()
	_ = w.buf.Flush()
	w.mu.Unlock()
}

// Close flushes remaining data and closes the file, reporting any
// write error accumulated since creation.
func (w *CSVWriter) Close() error {
	w.Flush()
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("csv write: %w", err)
	}
	return w.file.Close()
}

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// MeasurementKey names a measurement's mean value in the collated
// table: slab, grid and region joined with underscores.
func MeasurementKey(m grid.Measurement) string {
	return m.Slab + "_" + m.Grid + "_" + m.Region
}

// VolumeKey names a measurement's volume in the collated table.
func VolumeKey(m grid.Measurement) string {
	return MeasurementKey(m) + "_volume"
}

// FormatMean renders a measurement mean: two decimals for micron
// thicknesses, three for dimensionless ratios, an empty cell when
// undefined.
func FormatMean(m grid.Measurement) string {
	if !m.Defined() {
		return ""
	}
	if m.Kind == oct.KindRatio {
		return strconv.FormatFloat(m.Mean, 'f', 3, 64)
	}
	return strconv.FormatFloat(m.Mean, 'f', 2, 64)
}

// FormatVolume renders a measurement volume in mm3, or an empty cell
// for ratio maps and undefined values.
func FormatVolume(m grid.Measurement) string {
	return formatFloat(m.VolumeMM3, 3)
}
