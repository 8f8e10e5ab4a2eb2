// Package batch coordinates the analysis of a set of scan files:
// per-file decode, segment, register, measure and report, fanned out
// over a worker pool, with completed results reused across runs and
// everything collated into one combined table.
package batch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"octmeasure/internal/report"
	"octmeasure/pkg/boundary"
	"octmeasure/pkg/config"
	"octmeasure/pkg/grid"
	"octmeasure/pkg/oct"
	"octmeasure/pkg/runlog"
)

// Decoder loads the acquisition from an input file.
type Decoder interface {
	Decode(path string) (*oct.Volume, error)
}

// Segmenter provides boundary curves and landmarks for a decoded
// acquisition.
type Segmenter interface {
	Segment(path string, vol *oct.Volume) (*oct.Segmentation, error)
}

// Params holds the batch configuration.
type Params struct {
	// InputPaths lists the scan files to analyse, in the order their
	// results appear in the collated output.
	InputPaths []string

	// Config carries the analysis, grid, batch and output settings.
	Config *config.Config

	// Decoder and Segmenter load the scans.
	Decoder   Decoder
	Segmenter Segmenter

	// Logger mirrors the per-file run logs and carries batch progress.
	Logger zerolog.Logger
}

// FileResult is the outcome for one input file.
type FileResult struct {
	// Path is the input file path.
	Path string

	// BundleDir is where the result bundle lives.
	BundleDir string

	// Reused reports that a prior completed bundle was loaded instead
	// of reanalysing.
	Reused bool

	// Measurements holds the file's grid measurements, fresh or
	// cached.
	Measurements []grid.Measurement

	// Warnings counts warning log entries from the run.
	Warnings int

	// Err is set when the file failed.
	Err error
}

// Result summarises a finished batch.
type Result struct {
	// Files holds per-file outcomes in input order.
	Files []FileResult

	// CollatedPath is the combined measurement table.
	CollatedPath string

	// Summary is the final counter snapshot.
	Summary Summary
}

// Orchestrator runs the batch.
type Orchestrator struct {
	params   Params
	requests []boundary.Request
}

// New validates the parameters and prepares an orchestrator.
func New(params Params) (*Orchestrator, error) {
	if len(params.InputPaths) == 0 {
		return nil, fmt.Errorf("no input files to analyse")
	}
	if params.Decoder == nil || params.Segmenter == nil {
		return nil, fmt.Errorf("decoder and segmenter must be provided")
	}
	if params.Config == nil {
		params.Config = config.DefaultConfig()
	}
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	requests, err := boundary.ParseRequests(params.Config.Analysis.Slabs)
	if err != nil {
		return nil, fmt.Errorf("invalid slab configuration: %w", err)
	}
	return &Orchestrator{params: params, requests: requests}, nil
}

// Run analyses every input file and writes the collated table. In
// robust mode per-file failures are logged and the batch continues;
// otherwise the first failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	cfg := o.params.Config
	logger := o.params.Logger

	// Step 1: Prepare the output directory.
	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}

	// Step 2: Fan the files out over the worker pool.
	logger.Info().Int("files", len(o.params.InputPaths)).Int("workers", cfg.Batch.Workers).
		Msg("starting batch analysis")

	counters := NewCounters()
	results := make([]FileResult, len(o.params.InputPaths))

	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.Batch.Workers)
	for i, path := range o.params.InputPaths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[i] = FileResult{Path: path, Err: ctx.Err()}
				counters.FileFailed()
				return
			}
			results[i] = o.processFile(ctx, path, counters)
		}(i, path)
	}
	wg.Wait()

	// Step 3: Surface failures according to the robustness policy.
	for _, fr := range results {
		if fr.Err == nil {
			continue
		}
		logger.Error().Str("file", filepath.Base(fr.Path)).Err(fr.Err).Msg("analysis failed")
		if !cfg.Batch.Robust {
			return nil, fr.Err
		}
	}

	// Step 4: Collate the measurements of every completed file.
	collatedPath := filepath.Join(cfg.Output.Directory, cfg.Output.CollatedFile)
	if err := collate(collatedPath, results); err != nil {
		return nil, fmt.Errorf("failed to write collated measurements: %v", err)
	}

	res := &Result{
		Files:        results,
		CollatedPath: collatedPath,
		Summary:      counters.Snapshot(),
	}
	logger.Info().
		Int64("analyzed", res.Summary.Analyzed).
		Int64("reused", res.Summary.Reused).
		Int64("failed", res.Summary.Failed).
		Int64("warnings", res.Summary.Warnings).
		Str("elapsed", res.Summary.Elapsed).
		Msg("batch complete")
	return res, nil
}

// processFile analyses one input file, or reuses its prior bundle
// when a valid completion record is present.
func (o *Orchestrator) processFile(ctx context.Context, path string, counters *Counters) FileResult {
	cfg := o.params.Config
	name := filepath.Base(path)
	fr := FileResult{
		Path:      path,
		BundleDir: filepath.Join(cfg.Output.Directory, bundleName(path)),
	}

	source, err := report.SourceInfoFor(path)
	if err != nil {
		fr.Err = newDecodeError(name, err)
		counters.FileFailed()
		return fr
	}

	// A valid completion record means the bundle can stand in for a
	// fresh analysis.
	if cfg.Batch.ReuseExisting {
		if rec, err := report.LoadRecord(fr.BundleDir); err == nil {
			if rec.Valid(fr.BundleDir, source) {
				cached, err := report.LoadMeasurements(fr.BundleDir)
				if err == nil {
					o.params.Logger.Info().Str("file", name).
						Msg("previously analysed, reusing cached measurements")
					fr.Reused = true
					fr.Measurements = cached
					fr.Warnings = rec.Warnings
					counters.FileReused()
					counters.AddWarnings(int64(rec.Warnings))
					return fr
				}
				o.params.Logger.Warn().Str("file", name).Err(err).
					Msg("cached measurements unreadable, reanalysing")
			} else {
				o.params.Logger.Info().Str("file", name).
					Msg("existing results are stale, reanalysing")
			}
		}
	}

	collector := runlog.New(o.params.Logger, name)
	analysisID := uuid.New().String()

	vol, err := o.params.Decoder.Decode(path)
	if err != nil {
		fr.Err = newDecodeError(name, err)
		counters.FileFailed()
		return fr
	}
	seg, err := o.params.Segmenter.Segment(path, vol)
	if err != nil {
		fr.Err = newSegmentationError(name, "failed to load segmentation", err)
		counters.FileFailed()
		return fr
	}
	if ctx.Err() != nil {
		fr.Err = ctx.Err()
		counters.FileFailed()
		return fr
	}

	out, aerr := o.analyzeScan(vol, seg, collector)
	if aerr != nil {
		fr.Err = aerr
		counters.FileFailed()
		return fr
	}
	out.metadata.AnalysisID = analysisID
	out.metadata.Warnings = collector.Warnings()

	bundle := &report.Bundle{
		Dir:          fr.BundleDir,
		Metadata:     out.metadata,
		Measurements: out.measurements,
		Entries:      collector.Entries(),
		Images:       out.images,
	}
	files, err := bundle.Write(cfg.Output.SaveImages)
	if err != nil {
		fr.Err = newOutputError(name, err)
		counters.FileFailed()
		return fr
	}
	rec := report.NewRecord(analysisID, source, out.metadata.Pattern, out.metadata.Eye,
		out.metadata.Slabs, files, collector.Warnings())
	if err := rec.Save(fr.BundleDir); err != nil {
		fr.Err = newOutputError(name, err)
		counters.FileFailed()
		return fr
	}

	fr.Measurements = out.measurements
	fr.Warnings = collector.Warnings()
	counters.FileAnalyzed()
	counters.AddWarnings(int64(fr.Warnings))
	return fr
}

// collate writes the combined wide table: one row per completed file,
// one column per measurement key in first-seen order, so reruns with
// reused bundles produce byte-identical output to a fresh run.
func collate(path string, results []FileResult) error {
	var keys []string
	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, fr := range results {
		if fr.Err != nil {
			continue
		}
		for _, m := range fr.Measurements {
			add(report.MeasurementKey(m))
			if m.Kind == oct.KindThickness && !math.IsNaN(m.AreaMM2) {
				add(report.VolumeKey(m))
			}
		}
	}

	w, err := report.NewCSVWriter(path, append([]string{"filename"}, keys...))
	if err != nil {
		return err
	}
	for _, fr := range results {
		if fr.Err != nil {
			continue
		}
		cells := make(map[string]string, 2*len(fr.Measurements))
		for _, m := range fr.Measurements {
			cells[report.MeasurementKey(m)] = report.FormatMean(m)
			if m.Kind == oct.KindThickness && !math.IsNaN(m.AreaMM2) {
				cells[report.VolumeKey(m)] = report.FormatVolume(m)
			}
		}
		row := make([]string, 0, len(keys)+1)
		row = append(row, bundleName(fr.Path))
		for _, k := range keys {
			row = append(row, cells[k])
		}
		w.WriteRow(row)
	}
	return w.Close()
}

// bundleName strips the directory and extension from an input path.
func bundleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
