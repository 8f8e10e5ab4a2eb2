package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// RecordFile is the completion record's name inside a result bundle.
// It is written last, so its presence marks the bundle as complete.
const RecordFile = "record.json"

// recordSchemaVersion is bumped whenever the bundle layout changes in
// a way that makes older bundles unusable for reuse.
const recordSchemaVersion = 1

// SourceInfo pins a record to the exact input file it was computed
// from.
type SourceInfo struct {
	// Name is the source file name without directory.
	Name string `json:"name"`

	// SizeBytes and ModTime detect source file changes between runs.
	SizeBytes int64     `json:"sizeBytes"`
	ModTime   time.Time `json:"modTime"`
}

// SourceInfoFor stats a file and captures its identity.
func SourceInfoFor(path string) (SourceInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("failed to stat source file: %w", err)
	}
	return SourceInfo{
		Name:      filepath.Base(path),
		SizeBytes: fi.Size(),
		ModTime:   fi.ModTime().UTC(),
	}, nil
}

// Record marks a completed analysis. A record is created once per
// successful run and never mutated; a reanalysis replaces it
// wholesale.
type Record struct {
	// SchemaVersion is the bundle layout version.
	SchemaVersion int `json:"schemaVersion"`

	// AnalysisID identifies the run, matching the metadata table.
	AnalysisID string `json:"analysisId"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"createdAt"`

	// Source identifies the analysed input file.
	Source SourceInfo `json:"source"`

	// Pattern and Eye echo the scan identity for quick inspection.
	Pattern string `json:"pattern"`
	Eye     string `json:"eye"`

	// Slabs lists the measured layer slabs.
	Slabs []string `json:"slabs"`

	// Files lists the bundle files, relative to the bundle directory.
	Files []string `json:"files"`

	// Warnings counts warning log entries from the run.
	Warnings int `json:"warnings"`
}

// NewRecord builds a completion record for a finished analysis. The
// analysis id ties the record to the metadata table; a fresh one is
// generated when empty.
func NewRecord(analysisID string, source SourceInfo, pattern, eye string, slabs, files []string, warnings int) *Record {
	if analysisID == "" {
		analysisID = uuid.New().String()
	}
	return &Record{
		SchemaVersion: recordSchemaVersion,
		AnalysisID:    analysisID,
		CreatedAt:     time.Now().UTC(),
		Source:        source,
		Pattern:       pattern,
		Eye:           eye,
		Slabs:         append([]string(nil), slabs...),
		Files:         append([]string(nil), files...),
		Warnings:      warnings,
	}
}

// Save writes the record into the bundle directory. Callers must
// write every other bundle file first.
func (r *Record) Save(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RecordFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// LoadRecord reads a bundle's completion record.
func LoadRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFile))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &r, nil
}

// Valid reports whether the record can stand in for reanalysing the
// given source: same schema, same source identity, and every bundle
// file it lists still present.
func (r *Record) Valid(dir string, source SourceInfo) bool {
	if r.SchemaVersion != recordSchemaVersion || r.AnalysisID == "" {
		return false
	}
	if r.Source.Name != source.Name || r.Source.SizeBytes != source.SizeBytes {
		return false
	}
	if !r.Source.ModTime.Equal(source.ModTime) {
		return false
	}
	for _, f := range r.Files {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}
