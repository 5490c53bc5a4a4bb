// Package history persists the daily record time series: one JSON array,
// ascending by date, one record per calendar day.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fangwatch/fangwatch/internal/logger"
	"github.com/fangwatch/fangwatch/pkg/metric"
)

// History is the full persisted sequence of daily records.
type History []metric.DailyRecord

// FindDate returns the record for the given date, if present.
func (h History) FindDate(date string) (metric.DailyRecord, bool) {
	for _, r := range h {
		if r.Date == date {
			return r, true
		}
	}
	return metric.DailyRecord{}, false
}

// Outcome describes what an Upsert did.
type Outcome int

const (
	// Skipped means a record for the date already existed and overwrite
	// was not requested. The file is untouched.
	Skipped Outcome = iota
	// Inserted means no record existed for the date.
	Inserted
	// Replaced means an existing record was overwritten wholesale.
	Replaced
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Store reads and writes the history file. The file is the entire durable
// state of the system; writes replace it atomically as a whole. Concurrent
// runs against the same file are not guarded; scheduling must ensure at
// most one run at a time.
type Store struct {
	path string
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the history file location.
func (s *Store) Path() string { return s.path }

// Load deserializes the persisted history. A missing file is a first run,
// not an error, and yields an empty history.
func (s *Store) Load() (History, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return History{}, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return h, nil
}

// Upsert inserts or replaces the record keyed by its date. When a record
// for the date exists and overwrite is false, nothing is written and the
// outcome is Skipped. Otherwise the existing entry (if any) is dropped, the
// new record appended, the sequence re-sorted ascending by date, and the
// whole file rewritten atomically.
func (s *Store) Upsert(rec metric.DailyRecord, overwrite bool) (Outcome, error) {
	h, err := s.Load()
	if err != nil {
		return Skipped, err
	}

	_, exists := h.FindDate(rec.Date)
	if exists && !overwrite {
		logger.Debug("record already present", "date", rec.Date)
		return Skipped, nil
	}

	kept := h[:0]
	for _, r := range h {
		if r.Date != rec.Date {
			kept = append(kept, r)
		}
	}
	h = append(kept, rec)
	sort.Slice(h, func(i, j int) bool { return h[i].Date < h[j].Date })

	if err := s.write(h); err != nil {
		return Skipped, err
	}

	if exists {
		return Replaced, nil
	}
	return Inserted, nil
}

// write persists the history as indented UTF-8 JSON via a temp file and
// rename, so a failed write never leaves a partial file behind.
func (s *Store) write(h History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
