package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brianhealey/slidepi/internal/models"
)

const (
	jsonFileName  = "slideshow.json"
	debounceDelay = 500 * time.Millisecond
)

// JSONStore is an atomic JSON file store with debounced writes.
type JSONStore struct {
	mu      sync.Mutex
	path    string
	timer   *time.Timer
	pending *models.Snapshot
	onError func(error)
}

// NewJSONStore creates a new JSON store in the given config directory.
func NewJSONStore(configDir string) *JSONStore {
	return &JSONStore{
		path: filepath.Join(configDir, jsonFileName),
	}
}

// Path returns the file path used by this store.
func (s *JSONStore) Path() string { return s.path }

// SetErrorHandler registers fn for failed background writes.
func (s *JSONStore) SetErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Load reads the snapshot from disk. Returns DefaultSnapshot on ENOENT or
// parse errors.
func (s *JSONStore) Load() (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			def := models.DefaultSnapshot()
			return &def, nil
		}
		return nil, err
	}

	// Start from defaults so fields missing in older files keep sane values.
	snap := models.DefaultSnapshot()
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("config: corrupt JSON snapshot, using defaults", "path", s.path, "err", err)
		def := models.DefaultSnapshot()
		return &def, nil
	}

	migrateSnapshot(&snap)
	return &snap, nil
}

// Save schedules a debounced write of the snapshot to disk.
// The actual write happens after 500ms of no further Save calls.
func (s *JSONStore) Save(snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := snap.DeepCopy()
	s.pending = &cp

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		st := s.pending
		s.pending = nil
		onError := s.onError
		s.mu.Unlock()
		if st == nil {
			return
		}
		if err := s.writeAtomic(st); err != nil {
			slog.Error("config: failed to write snapshot", "path", s.path, "err", err)
			if onError != nil {
				onError(err)
			}
		}
	})
	return nil
}

// Flush forces an immediate write of any pending snapshot.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	st := s.pending
	s.pending = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return s.writeAtomic(st)
}

func (s *JSONStore) writeAtomic(snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	// Write to temp file, then rename (atomic on Linux)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("config: writing %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, s.path)
}

var _ Store = (*JSONStore)(nil)
