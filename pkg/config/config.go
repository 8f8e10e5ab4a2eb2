// Package config provides configuration loading and management for octmeasure.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Analysis parameters
	Analysis struct {
		// Slabs lists the layer spans to measure, named "UPPER_LOWER"
		// (e.g. "ILM_BM"). Spans whose layers were never segmented are
		// skipped without error.
		Slabs []string `yaml:"slabs"`

		// NormalSlabs lists the slabs measured with the locally-normal
		// convention instead of the vertical axis. Sloped structures
		// (the choroid) overestimate under the axis-aligned convention.
		NormalSlabs []string `yaml:"normalSlabs"`

		// DegradationThreshold is the fraction of B-scans that may lack
		// an intermediate slab before the whole volume falls back to
		// whole-structure measurements only.
		DegradationThreshold float64 `yaml:"degradationThreshold"`

		// InterpolateMissing enables nearest-neighbour filling of
		// missing samples before region statistics.
		InterpolateMissing bool `yaml:"interpolateMissing"`

		// SmoothingWindow is the moving-average window (in samples)
		// applied to reported peripapillary profiles. 0 disables it.
		SmoothingWindow int `yaml:"smoothingWindow"`
	} `yaml:"analysis"`

	// Grid geometry parameters
	Grid struct {
		// EtdrsDiametersMicrons are the three ETDRS circle diameters.
		EtdrsDiametersMicrons []float64 `yaml:"etdrsDiametersMicrons"`

		// SquareDivisions is the cell count per side of the posterior
		// pole grid.
		SquareDivisions int `yaml:"squareDivisions"`

		// SquareSizeMicrons is the side length of the posterior pole grid.
		SquareSizeMicrons float64 `yaml:"squareSizeMicrons"`

		// LinearDistancesMicrons are the fovea-centered window
		// half-widths measured on single-line scans.
		LinearDistancesMicrons []float64 `yaml:"linearDistancesMicrons"`

		// PMBHalfWidthDegrees is the papillomacular-bundle half-angle
		// on peripapillary profiles.
		PMBHalfWidthDegrees float64 `yaml:"pmbHalfWidthDegrees"`
	} `yaml:"grid"`

	// Batch processing parameters
	Batch struct {
		// Workers bounds how many files are analyzed concurrently.
		// 0 uses all available cores.
		Workers int `yaml:"workers"`

		// Robust keeps the batch running past per-file failures. When
		// false the first failure aborts the run with the full error.
		Robust bool `yaml:"robust"`

		// ReuseExisting loads previously completed result bundles
		// instead of reanalyzing their files.
		ReuseExisting bool `yaml:"reuseExisting"`
	} `yaml:"batch"`

	// Output parameters
	Output struct {
		// Directory is where per-file bundles and the collated results
		// are written.
		Directory string `yaml:"directory"`

		// SaveImages enables writing overlay and map renderings.
		SaveImages bool `yaml:"saveImages"`

		// CollatedFile is the filename of the merged per-file dataset.
		CollatedFile string `yaml:"collatedFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default analysis parameters
	cfg.Analysis.Slabs = []string{"ILM_BM", "ILM_OPL", "BM_CSI"}
	cfg.Analysis.NormalSlabs = []string{"BM_CSI"}
	cfg.Analysis.DegradationThreshold = 0.5
	cfg.Analysis.InterpolateMissing = true
	cfg.Analysis.SmoothingWindow = 11

	// Set default grid geometry
	cfg.Grid.EtdrsDiametersMicrons = []float64{1000, 3000, 6000}
	cfg.Grid.SquareDivisions = 8
	cfg.Grid.SquareSizeMicrons = 7000
	cfg.Grid.LinearDistancesMicrons = []float64{1500, 3000}
	cfg.Grid.PMBHalfWidthDegrees = 15

	// Set default batch parameters
	cfg.Batch.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Batch.Robust = true
	cfg.Batch.ReuseExisting = true

	// Set default output parameters
	cfg.Output.Directory = "analysis_output"
	cfg.Output.SaveImages = true
	cfg.Output.CollatedFile = "measurements.csv"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the configuration for values the engine cannot work with
func (cfg *Config) Validate() error {
	if cfg.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must not be negative, got %d", cfg.Batch.Workers)
	}
	if t := cfg.Analysis.DegradationThreshold; t < 0 || t > 1 {
		return fmt.Errorf("analysis.degradationThreshold must be in [0, 1], got %g", t)
	}
	if len(cfg.Analysis.Slabs) == 0 {
		return fmt.Errorf("analysis.slabs must name at least one layer span")
	}
	d := cfg.Grid.EtdrsDiametersMicrons
	if len(d) != 3 {
		return fmt.Errorf("grid.etdrsDiametersMicrons must hold exactly 3 diameters, got %d", len(d))
	}
	if d[0] <= 0 || d[0] >= d[1] || d[1] >= d[2] {
		return fmt.Errorf("grid.etdrsDiametersMicrons must be positive and ascending, got %v", d)
	}
	if cfg.Grid.SquareDivisions <= 0 {
		return fmt.Errorf("grid.squareDivisions must be positive, got %d", cfg.Grid.SquareDivisions)
	}
	if cfg.Grid.SquareSizeMicrons <= 0 {
		return fmt.Errorf("grid.squareSizeMicrons must be positive, got %g", cfg.Grid.SquareSizeMicrons)
	}
	for _, dist := range cfg.Grid.LinearDistancesMicrons {
		if dist <= 0 {
			return fmt.Errorf("grid.linearDistancesMicrons must be positive, got %g", dist)
		}
	}
	if w := cfg.Grid.PMBHalfWidthDegrees; w <= 0 || w > 45 {
		return fmt.Errorf("grid.pmbHalfWidthDegrees must be in (0, 45], got %g", w)
	}
	if cfg.Analysis.SmoothingWindow < 0 {
		return fmt.Errorf("analysis.smoothingWindow must not be negative, got %d", cfg.Analysis.SmoothingWindow)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
