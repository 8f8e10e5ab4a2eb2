package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"octmeasure/internal/batch"
	"octmeasure/internal/exchange"
	"octmeasure/pkg/config"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Scan envelope file or directory of envelopes to analyse")
	configPath := flag.String("config", "octmeasure.yaml", "Path to the YAML configuration file")
	outputDir := flag.String("output", "", "Output directory (overrides the configured one)")
	workers := flag.Int("workers", 0, "Number of files analysed concurrently (overrides the configured count)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	createConfig := flag.Bool("create-config", false, "Write a default configuration file to the -config path and exit")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Collect the input files from -input and any positional arguments
	inputs, err := collectInputs(*inputPath, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to collect inputs: %v\n", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration and apply command line overrides
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Output.Directory = *outputDir
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	logger := newLogger(cfg.Output.Verbose)

	fmt.Println("================================")
	fmt.Println("OCTMEASURE - RETINAL AND CHOROIDAL THICKNESS MEASUREMENT FROM OCT/SLO SCANS")
	fmt.Println("================================")
	fmt.Printf("Analysing %d file(s) with %d worker(s)\n", len(inputs), cfg.Batch.Workers)

	// The exchange loader serves both pipeline collaborators: it decodes
	// the acquisition and exposes its segmentation.
	loader := exchange.NewLoader()
	orchestrator, err := batch.New(batch.Params{
		InputPaths: inputs,
		Config:     cfg,
		Decoder:    loader,
		Segmenter:  loader,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid batch parameters")
	}

	// Stop cleanly on interrupt; files already analysed keep their
	// bundles and are reused on the next run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	res, err := orchestrator.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("batch analysis failed")
	}

	fmt.Printf("\nAnalysis completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Collated measurements saved to: %s\n\n", res.CollatedPath)

	fmt.Printf("Batch summary:\n")
	fmt.Printf("==============\n")
	fmt.Printf("Files analysed: %d\n", res.Summary.Analyzed)
	fmt.Printf("Results reused: %d\n", res.Summary.Reused)
	fmt.Printf("Failures: %d\n", res.Summary.Failed)
	fmt.Printf("Warnings: %d\n", res.Summary.Warnings)
	fmt.Printf("Throughput: %.2f files/second\n", res.Summary.FilesPerSecond)

	if res.Summary.Failed > 0 {
		os.Exit(1)
	}
}

// newLogger builds the console logger the batch mirrors its run logs to.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// collectInputs expands the -input path and positional arguments into
// the sorted list of envelope files to analyse. A directory contributes
// every .json file directly inside it.
func collectInputs(input string, extra []string) ([]string, error) {
	var paths []string
	add := func(p string) error {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, p)
			return nil
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(e.Name()), ".json") {
				paths = append(paths, filepath.Join(p, e.Name()))
			}
		}
		return nil
	}

	if input != "" {
		if err := add(input); err != nil {
			return nil, err
		}
	}
	for _, p := range extra {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}
