// Package state provides file-based persistence for evaluation baselines.
//
// The baselines.json file maps eval ids to the run registered as the
// reference for future comparisons. Writes are atomic
// (write-tmp-fsync-rename) with file locking (flock for cross-process,
// mutex for in-process) and a backup of the previous version.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Baseline is the registered reference run for one eval id.
type Baseline struct {
	// RunID is the reference run.
	RunID string `json:"run_id"`
	// RegisteredAt is when the baseline was set (UTC).
	RegisteredAt time.Time `json:"registered_at"`
	// Note is an optional operator note.
	Note string `json:"note,omitempty"`
}

// baselineDoc is the on-disk document shape.
type baselineDoc struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`
	// Baselines maps eval_id to its registered baseline.
	Baselines map[string]Baseline `json:"baselines"`
	// CreatedAt is when the file was first created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// BaselineStore manages reading and writing the baselines file.
type BaselineStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewBaselineStore creates a store for the given file path. A nil logger
// defaults to slog.Default.
func NewBaselineStore(path string, logger *slog.Logger) *BaselineStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaselineStore{path: path, logger: logger}
}

// Get returns the baseline for an eval id, or false when none is
// registered.
func (s *BaselineStore) Get(evalID string) (Baseline, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Baseline{}, false, err
	}
	b, ok := doc.Baselines[evalID]
	return b, ok, nil
}

// Set registers a run as the baseline for an eval id, replacing any
// previous one.
func (s *BaselineStore) Set(evalID, runID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Baselines[evalID] = Baseline{
		RunID:        runID,
		RegisteredAt: time.Now().UTC(),
		Note:         note,
	}
	return s.save(doc)
}

// Delete removes the baseline for an eval id. Removing an absent baseline
// is a no-op.
func (s *BaselineStore) Delete(evalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Baselines[evalID]; !ok {
		return nil
	}
	delete(doc.Baselines, evalID)
	return s.save(doc)
}

// List returns the registered eval ids, sorted.
func (s *BaselineStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc.Baselines))
	for id := range doc.Baselines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Path returns the configured file path.
func (s *BaselineStore) Path() string {
	return s.path
}

// load reads and parses the baselines file. A missing file yields an
// empty document. Caller holds the mutex.
func (s *BaselineStore) load() (*baselineDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now().UTC()
			return &baselineDoc{
				Version:   "1",
				Baselines: make(map[string]Baseline),
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}
		return nil, fmt.Errorf("read baselines file: %w", err)
	}

	// Warn if the existing file has permissions more open than 0600.
	// Skip on Windows where Unix permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("baselines file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var doc baselineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse baselines file: %w", err)
	}
	if doc.Baselines == nil {
		doc.Baselines = make(map[string]Baseline)
	}
	return &doc, nil
}

// save writes the document to disk atomically.
//
// The write sequence is:
//  1. Acquire flock on path+".lock"
//  2. Copy current file to path+".bak" (skipped if no current file)
//  3. Marshal as indented JSON
//  4. Write to path+".tmp" with 0600 permissions
//  5. Fsync the temp file
//  6. Rename path+".tmp" -> path
//  7. Release flock
//
// Caller holds the mutex.
func (s *BaselineStore) save(doc *baselineDoc) error {
	doc.UpdatedAt = time.Now().UTC()

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baselines: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on baselines file", "error", err)
	}

	s.logger.Debug("baselines saved", "path", s.path)
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over
// the target path. On any error the temp file is cleaned up.
func (s *BaselineStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to baselines: %w", err)
	}
	return nil
}
