package config

import (
	"sync"

	"github.com/brianhealey/slidepi/internal/models"
)

// MemStore is an in-memory Store for tests that never writes to disk.
type MemStore struct {
	mu      sync.Mutex
	snap    *models.Snapshot
	saveErr error
	saves   int
}

// NewMemStore returns a new in-memory store with nil snapshot (defaults to
// DefaultSnapshot on Load).
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns a copy of the stored snapshot, or DefaultSnapshot if none has
// been saved yet.
func (m *MemStore) Load() (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		def := models.DefaultSnapshot()
		return &def, nil
	}
	cp := m.snap.DeepCopy()
	return &cp, nil
}

// Save stores a deep copy of the given snapshot in memory. When a save error
// has been injected with FailSaves, the snapshot is discarded and the error
// returned.
func (m *MemStore) Save(snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := snap.DeepCopy()
	m.snap = &cp
	return nil
}

// FailSaves makes every later Save fail with err. A nil err restores normal
// behaviour.
func (m *MemStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves returns how many times Save was called.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// SetErrorHandler is a no-op: MemStore saves synchronously.
func (m *MemStore) SetErrorHandler(func(error)) {}

// Path returns ":memory:" to indicate this is an in-memory store.
func (m *MemStore) Path() string { return ":memory:" }

// Flush is a no-op for in-memory stores.
func (m *MemStore) Flush() error { return nil }

// Ensure MemStore implements config.Store
var _ Store = (*MemStore)(nil)
