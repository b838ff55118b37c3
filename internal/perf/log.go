// Package perf keeps the append-only performance log of completed runs.
//
// Each logical server has its own JSON array file. The log grows without
// bound; readers only look at the most recent entries. Older logs with
// zone-less timestamps and a check_mode key are still read. A log that
// cannot be parsed is treated as empty by readers and moved aside before
// the next append.
package perf

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/modwatch/internal/mods"
)

const (
	// PerformanceDir is the subdirectory under the data dir holding the logs.
	PerformanceDir = "performance"
	// DefaultTail is how many records summaries look at.
	DefaultTail = 20
)

// timeNow is replaceable in tests.
var timeNow = time.Now

// Log reads and appends performance records.
type Log struct {
	dataDir string
	logger  *slog.Logger
}

// New creates a performance log rooted at dataDir.
func New(dataDir string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{dataDir: dataDir, logger: logger}
}

// Path returns the performance log file for a server id.
func (l *Log) Path(serverID string) string {
	return filepath.Join(l.dataDir, PerformanceDir, serverID+"_perf.json")
}

// Append adds rec to the server's log.
func (l *Log) Append(serverID string, rec mods.PerformanceRecord) error {
	records, err := l.read(serverID)
	switch {
	case errors.Is(err, errUnparseable):
		if err := l.quarantine(serverID); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling performance log: %w", err)
	}

	path := l.Path(serverID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating performance directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing performance log: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing performance log: %w", err)
	}
	return nil
}

// Tail returns up to n most recent records, oldest first.
func (l *Log) Tail(serverID string, n int) []mods.PerformanceRecord {
	records := l.readAll(serverID)
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records
}

// Summary aggregates a slice of records.
type Summary struct {
	Runs            int
	AverageDuration float64
	MinDuration     float64
	MaxDuration     float64
}

// Summarize computes the average and bounds of run durations.
func Summarize(records []mods.PerformanceRecord) Summary {
	s := Summary{Runs: len(records)}
	if len(records) == 0 {
		return s
	}
	var total float64
	s.MinDuration = records[0].DurationSeconds
	for _, r := range records {
		total += r.DurationSeconds
		s.MinDuration = min(s.MinDuration, r.DurationSeconds)
		s.MaxDuration = max(s.MaxDuration, r.DurationSeconds)
	}
	s.AverageDuration = total / float64(len(records))
	return s
}

// errUnparseable marks a log file whose contents are not a record array.
var errUnparseable = errors.New("performance log unparseable")

func (l *Log) readAll(serverID string) []mods.PerformanceRecord {
	records, err := l.read(serverID)
	if err != nil {
		l.logger.Warn("performance log unreadable, treating as empty", "server", serverID, "error", err)
		return nil
	}
	return records
}

func (l *Log) read(serverID string) ([]mods.PerformanceRecord, error) {
	data, err := os.ReadFile(l.Path(serverID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading performance log: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var stored []storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnparseable, err)
	}
	records := make([]mods.PerformanceRecord, 0, len(stored))
	for i, sr := range stored {
		rec, err := sr.record()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errUnparseable, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// quarantine renames an unparseable log so the next write does not
// destroy it.
func (l *Log) quarantine(serverID string) error {
	path := l.Path(serverID)
	aside := path + ".corrupt-" + timeNow().UTC().Format("20060102T150405Z")
	if err := os.Rename(path, aside); err != nil {
		return fmt.Errorf("moving aside unparseable performance log: %w", err)
	}
	l.logger.Warn("performance log unparseable, moved aside", "server", serverID, "path", aside)
	return nil
}

// storedRecord is the on-disk shape of a record. Older logs wrote the
// strategy under check_mode and timestamps without a zone.
type storedRecord struct {
	Timestamp       string  `json:"timestamp"`
	DurationSeconds float64 `json:"duration_seconds"`
	Mode            string  `json:"mode"`
	CheckMode       string  `json:"check_mode"`
	ModCount        int     `json:"mod_count"`
}

// zonelessLayout matches timestamps written without an offset. The
// fractional part is optional.
const zonelessLayout = "2006-01-02T15:04:05.999999999"

func (sr storedRecord) record() (mods.PerformanceRecord, error) {
	rec := mods.PerformanceRecord{
		DurationSeconds: sr.DurationSeconds,
		ModCount:        sr.ModCount,
	}

	ts, err := time.Parse(time.RFC3339Nano, sr.Timestamp)
	if err != nil {
		// Zone-less stamps were written in the host's local time.
		ts, err = time.ParseInLocation(zonelessLayout, sr.Timestamp, time.Local)
		if err != nil {
			return rec, fmt.Errorf("timestamp %q: %w", sr.Timestamp, err)
		}
	}
	rec.Timestamp = ts

	mode := sr.Mode
	if mode == "" {
		mode = sr.CheckMode
	}
	if mode != "" {
		if strategy, err := mods.ParseStrategy(mode); err == nil {
			rec.Mode = strategy
		} else {
			rec.Mode = mods.Strategy(mode)
		}
	}
	return rec, nil
}
