package runlog

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCollector(file string) *Collector {
	return New(zerolog.Nop(), file)
}

// TestCollectorOrder verifies entries keep their append order and
// severity
func TestCollectorOrder(t *testing.T) {
	c := testCollector("scan.json")
	c.Debugf("probing %s", "curves")
	c.Infof("registered")
	c.Warnf("fovea missing")
	c.Errorf("decode failed")

	entries := c.Entries()
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}

	wantLevels := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
	wantMessages := []string{"probing curves", "registered", "fovea missing", "decode failed"}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Errorf("Entry %d: expected level %v, got %v", i, wantLevels[i], e.Level)
		}
		if e.Message != wantMessages[i] {
			t.Errorf("Entry %d: expected message %q, got %q", i, wantMessages[i], e.Message)
		}
		if e.File != "scan.json" {
			t.Errorf("Entry %d: expected file scan.json, got %s", i, e.File)
		}
	}
}

// TestCollectorScan verifies the scan pattern stamps entries only
// after it becomes known
func TestCollectorScan(t *testing.T) {
	c := testCollector("scan.json")
	c.Infof("decoding")
	c.SetScan("macular_volume")
	c.Infof("measuring")

	entries := c.Entries()
	if entries[0].Scan != "" {
		t.Errorf("Expected no scan before SetScan, got %q", entries[0].Scan)
	}
	if entries[1].Scan != "macular_volume" {
		t.Errorf("Expected scan macular_volume, got %q", entries[1].Scan)
	}
}

// TestWarnings verifies the warning count includes errors
func TestWarnings(t *testing.T) {
	c := testCollector("scan.json")
	c.Infof("fine")
	c.Warnf("suspicious")
	c.Errorf("broken")
	c.Debugf("detail")

	if n := c.Warnings(); n != 2 {
		t.Errorf("Expected 2 warnings, got %d", n)
	}
}

// TestEntriesCopy verifies callers cannot mutate the collector
// through the returned slice
func TestEntriesCopy(t *testing.T) {
	c := testCollector("scan.json")
	c.Infof("original")

	entries := c.Entries()
	entries[0].Message = "tampered"

	if got := c.Entries()[0].Message; got != "original" {
		t.Errorf("Expected the collector to keep its entry, got %q", got)
	}
}

// TestEntryFormat verifies the rendered log line layout
func TestEntryFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	e := Entry{Time: at, Level: LevelWarn, File: "scan.json", Scan: "macular_volume", Message: "fovea missing"}
	want := "2026-03-14 09:30:00 WARN  [scan.json/macular_volume] fovea missing"
	if got := e.Format(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	e = Entry{Time: at, Level: LevelInfo, File: "scan.json", Message: "decoding"}
	want = "2026-03-14 09:30:00 INFO  [scan.json] decoding"
	if got := e.Format(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

// TestLevelString verifies level display names
func TestLevelString(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "INFO"},
	}
	for _, c := range cases {
		if got := c.level.String(); got != c.want {
			t.Errorf("Expected %s for level %d, got %s", c.want, c.level, got)
		}
	}
}

// TestMerge verifies collector order is preserved and nil collectors
// are skipped
func TestMerge(t *testing.T) {
	a := testCollector("a.json")
	a.Infof("first")
	a.Infof("second")
	b := testCollector("b.json")
	b.Warnf("third")

	merged := Merge(a, nil, b)
	if len(merged) != 3 {
		t.Fatalf("Expected 3 merged entries, got %d", len(merged))
	}
	wantFiles := []string{"a.json", "a.json", "b.json"}
	wantMessages := []string{"first", "second", "third"}
	for i, e := range merged {
		if e.File != wantFiles[i] || e.Message != wantMessages[i] {
			t.Errorf("Entry %d: expected %s %q, got %s %q",
				i, wantFiles[i], wantMessages[i], e.File, e.Message)
		}
	}
}

// TestFile verifies the collector reports its input file
func TestFile(t *testing.T) {
	c := testCollector("volume.json")
	if got := c.File(); got != "volume.json" {
		t.Errorf("Expected volume.json, got %s", got)
	}
}
