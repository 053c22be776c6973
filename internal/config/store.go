// Package config handles loading and saving the SlidePi snapshot (settings
// plus image collection) and the daemon options.
package config

import "github.com/brianhealey/slidepi/internal/models"

// Store is the interface for persisting the slideshow snapshot.
type Store interface {
	// Load loads the current snapshot. Returns DefaultSnapshot if nothing has
	// been stored yet.
	Load() (*models.Snapshot, error)

	// Save persists the snapshot. Implementations may debounce rapid saves and
	// report write failures through the handler set with SetErrorHandler.
	Save(snap *models.Snapshot) error

	// Path returns the file path used by this store.
	Path() string

	// Flush forces an immediate write of any pending snapshot.
	Flush() error

	// SetErrorHandler registers fn to be called when a write fails after
	// Save has returned.
	SetErrorHandler(fn func(error))
}
