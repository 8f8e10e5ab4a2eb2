// Package runlog collects the diagnostics of one analysis run as an
// ordered sequence of structured entries. The collector is passed
// through the pipeline explicitly and returned alongside results, so
// warnings stay ordered and testable without global logger state. Each
// entry is mirrored to a zerolog logger as it is appended.
package runlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of a collected entry.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level's display name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Entry is one collected diagnostic.
type Entry struct {
	// Time is when the entry was appended.
	Time time.Time

	// Level is the entry severity.
	Level Level

	// File identifies the input file the entry belongs to.
	File string

	// Scan is the scan pattern in effect when the entry was appended,
	// empty before the pattern is known.
	Scan string

	// Message is the human-readable diagnostic.
	Message string
}

// Format renders the entry as a single log line.
func (e Entry) Format() string {
	if e.Scan != "" {
		return fmt.Sprintf("%s %-5s [%s/%s] %s",
			e.Time.Format("2006-01-02 15:04:05"), e.Level, e.File, e.Scan, e.Message)
	}
	return fmt.Sprintf("%s %-5s [%s] %s",
		e.Time.Format("2006-01-02 15:04:05"), e.Level, e.File, e.Message)
}

// Collector accumulates entries for one file of one run. A collector
// is owned by a single pipeline invocation; the mutex only guards the
// seam where the batch layer reads entries back out.
type Collector struct {
	mu      sync.Mutex
	mirror  zerolog.Logger
	file    string
	scan    string
	entries []Entry
}

// New returns a collector for the given input file. Every appended
// entry is mirrored to the provided logger.
func New(mirror zerolog.Logger, file string) *Collector {
	return &Collector{mirror: mirror, file: file}
}

// SetScan sets the scan pattern recorded on subsequent entries.
func (c *Collector) SetScan(scan string) {
	c.mu.Lock()
	c.scan = scan
	c.mu.Unlock()
}

// File returns the input file the collector belongs to.
func (c *Collector) File() string { return c.file }

// Debugf appends a debug-level entry.
func (c *Collector) Debugf(format string, args ...interface{}) {
	c.append(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof appends an info-level entry.
func (c *Collector) Infof(format string, args ...interface{}) {
	c.append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf appends a warning entry.
func (c *Collector) Warnf(format string, args ...interface{}) {
	c.append(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf appends an error-level entry.
func (c *Collector) Errorf(format string, args ...interface{}) {
	c.append(LevelError, fmt.Sprintf(format, args...))
}

func (c *Collector) append(level Level, msg string) {
	c.mu.Lock()
	e := Entry{
		Time:    time.Now(),
		Level:   level,
		File:    c.file,
		Scan:    c.scan,
		Message: msg,
	}
	c.entries = append(c.entries, e)
	c.mu.Unlock()

	c.mirror.WithLevel(level.zerolog()).
		Str("file", e.File).
		Str("scan", e.Scan).
		Msg(msg)
}

// Entries returns a copy of the collected entries in append order.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Warnings returns the number of entries at warning level or above.
func (c *Collector) Warnings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.Level >= LevelWarn {
			n++
		}
	}
	return n
}

// Merge concatenates the entries of several collectors in the given
// collector order, preserving each collector's internal ordering.
func Merge(collectors ...*Collector) []Entry {
	var out []Entry
	for _, c := range collectors {
		if c != nil {
			out = append(out, c.Entries()...)
		}
	}
	return out
}
