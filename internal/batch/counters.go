package batch

import (
	"sync/atomic"
	"time"
)

// Counters tracks batch progress with lock-free atomic counters, so
// workers update them without coordination.
type Counters struct {
	analyzed atomic.Int64
	reused   atomic.Int64
	failed   atomic.Int64
	warnings atomic.Int64

	startTime time.Time
}

// NewCounters returns counters with the clock started.
func NewCounters() *Counters {
	return &Counters{startTime: time.Now()}
}

func (c *Counters) FileAnalyzed()       { c.analyzed.Add(1) }
func (c *Counters) FileReused()         { c.reused.Add(1) }
func (c *Counters) FileFailed()         { c.failed.Add(1) }
func (c *Counters) AddWarnings(n int64) { c.warnings.Add(n) }

// Summary is a point-in-time view of the batch counters.
type Summary struct {
	Analyzed int64  `json:"analyzed"`
	Reused   int64  `json:"reused"`
	Failed   int64  `json:"failed"`
	Warnings int64  `json:"warnings"`
	Elapsed  string `json:"elapsed"`

	// FilesPerSecond counts completed files, fresh or reused, per
	// second of wall time.
	FilesPerSecond float64 `json:"files_per_second"`
}

// Snapshot returns a consistent view of the counters.
func (c *Counters) Snapshot() Summary {
	analyzed := c.analyzed.Load()
	reused := c.reused.Load()
	elapsed := time.Since(c.startTime)

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(analyzed+reused) / elapsed.Seconds()
	}

	return Summary{
		Analyzed:       analyzed,
		Reused:         reused,
		Failed:         c.failed.Load(),
		Warnings:       c.warnings.Load(),
		Elapsed:        elapsed.Round(time.Millisecond).String(),
		FilesPerSecond: rate,
	}
}
