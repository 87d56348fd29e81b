// Package history keeps a small local index of completed scans so operators
// can review past runs without re-reading report artifacts. The index is a
// single JSON file guarded by an advisory file lock, which makes concurrent
// scans on the same host append safely.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/report"
)

const indexFile = "index.json"

// Entry is one recorded scan run.
type Entry struct {
	ID         string         `json:"id"`
	ScanID     string         `json:"scan_id"`
	RecordedAt time.Time      `json:"recorded_at"`
	OutputPath string         `json:"output_path,omitempty"`
	SHA256     string         `json:"sha256,omitempty"`
	RiskScore  int            `json:"risk_score"`
	Findings   int            `json:"findings"`
	Counts     map[string]int `json:"counts,omitempty"`
}

// Store reads and appends entries in a workspace directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates a store rooted at dir, creating the directory when
// needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("history directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: log.With().Str("component", "history").Logger(),
	}, nil
}

// NewEntry builds an index entry from a finished report and the artifact it
// was written to. outputPath and digest may be empty when the report went to
// stdout.
func NewEntry(rep *report.Report, outputPath, digest string) Entry {
	sum := rep.Summary()
	return Entry{
		ID:         uuid.New().String(),
		ScanID:     rep.Meta().ScanID,
		RecordedAt: time.Now().UTC(),
		OutputPath: outputPath,
		SHA256:     digest,
		RiskScore:  sum.TotalRiskScore,
		Findings:   sum.TotalFindings,
		Counts:     sum.Counts,
	}
}

// Append adds an entry to the index under an exclusive lock.
func (s *Store) Append(entry Entry) error {
	path := filepath.Join(s.dir, indexFile)

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire history lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := readIndex(path)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write history index: %w", err)
	}

	s.logger.Debug().Str("entry", entry.ID).Int("total", len(entries)).Msg("History entry recorded")
	return nil
}

// List returns all entries, most recent first. A missing index is an empty
// history, not an error.
func (s *Store) List() ([]Entry, error) {
	path := filepath.Join(s.dir, indexFile)

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("acquire history lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := readIndex(path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RecordedAt.After(entries[j].RecordedAt)
	})
	return entries, nil
}

func readIndex(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history index: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history index: %w", err)
	}
	return entries, nil
}
