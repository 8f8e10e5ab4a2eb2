package batch

import (
	"sync"
	"testing"
)

// TestCountersSnapshot verifies the counter fields land in the
// summary
func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()
	c.FileAnalyzed()
	c.FileAnalyzed()
	c.FileReused()
	c.FileFailed()
	c.AddWarnings(3)

	s := c.Snapshot()
	if s.Analyzed != 2 {
		t.Errorf("Expected 2 analysed, got %d", s.Analyzed)
	}
	if s.Reused != 1 {
		t.Errorf("Expected 1 reused, got %d", s.Reused)
	}
	if s.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", s.Failed)
	}
	if s.Warnings != 3 {
		t.Errorf("Expected 3 warnings, got %d", s.Warnings)
	}
	if s.Elapsed == "" {
		t.Error("Expected an elapsed duration")
	}
	if s.FilesPerSecond <= 0 {
		t.Errorf("Expected a positive completion rate, got %f", s.FilesPerSecond)
	}
}

// TestCountersConcurrent verifies workers can update counters without
// coordination
func TestCountersConcurrent(t *testing.T) {
	c := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.FileAnalyzed()
				c.AddWarnings(2)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.Analyzed != 1000 {
		t.Errorf("Expected 1000 analysed, got %d", s.Analyzed)
	}
	if s.Warnings != 2000 {
		t.Errorf("Expected 2000 warnings, got %d", s.Warnings)
	}
}
