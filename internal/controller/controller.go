// Package controller ties the slideshow engine, the lock gate, the snapshot
// store and the media library together. It is the single source of truth for
// settings and the image collection.
package controller

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/brianhealey/slidepi/internal/config"
	"github.com/brianhealey/slidepi/internal/events"
	"github.com/brianhealey/slidepi/internal/identity"
	"github.com/brianhealey/slidepi/internal/lock"
	"github.com/brianhealey/slidepi/internal/models"
	"github.com/brianhealey/slidepi/internal/slideshow"
)

// Library stores and removes uploaded image files.
type Library interface {
	Store(r io.Reader, fileName string) (models.Image, error)
	Remove(img models.Image) error
}

// Options configures a Controller.
type Options struct {
	Store   config.Store
	Bus     *events.Bus
	Library Library // nil disables uploads
	Engine  slideshow.Options
	// Lock configures the gate. Requester and Executors are set by the
	// controller.
	Lock         lock.Options
	LockPassword string // seeds the credential when none is stored
	StartLocked  bool
	Info         models.Info
	// Hooks receive engine phase transitions, including the first one at
	// startup.
	Hooks []func(slideshow.Transition)
}

// Controller is the central state holder for SlidePi.
// All snapshot mutations go through apply(), which persists the result,
// resynchronises the engine and publishes the new state.
type Controller struct {
	opMu sync.Mutex // serialises writers so engine updates follow snapshot order

	mu         sync.RWMutex
	snap       models.Snapshot
	fullscreen bool

	viewMu  sync.Mutex
	viewers map[string]bool // client id -> page hidden

	store     config.Store
	presenter *events.Presenter
	engine    *slideshow.Engine
	gate      *lock.Gate
	lib       Library
	info      models.Info
}

// New loads the snapshot, starts the engine and opens the lock gate.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Bus == nil {
		return nil, errors.New("controller: store and bus are required")
	}
	snap, err := opts.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("controller: loading snapshot: %w", err)
	}

	presenter := events.NewPresenter(opts.Bus)
	c := &Controller{
		snap:      *snap,
		store:     opts.Store,
		presenter: presenter,
		engine:    slideshow.New(presenter, opts.Engine),
		lib:       opts.Library,
		info:      opts.Info,
		viewers:   make(map[string]bool),
	}
	if c.info.Store == "" {
		c.info.Store = opts.Store.Path()
	}

	lockOpts := opts.Lock
	lockOpts.Requester = presenter
	lockOpts.Executors = map[lock.Action]func(){
		lock.ActionPause:      func() { c.engine.TogglePause() },
		lock.ActionNext:       c.engine.Next,
		lock.ActionPrev:       c.engine.Previous,
		lock.ActionFullscreen: c.toggleFullscreen,
		lock.ActionSettings:   presenter.OpenSettings,
	}
	c.gate, err = lock.NewGate(lockOpts)
	if err != nil {
		c.engine.Close()
		return nil, err
	}
	if err := c.gate.Seed(opts.LockPassword); err != nil {
		slog.Warn("controller: seeding lock password failed", "err", err)
	}
	if opts.StartLocked && c.gate.Status().HasCredential {
		if err := c.gate.Lock(); err != nil {
			slog.Warn("controller: arming lock failed", "err", err)
		}
	}

	opts.Store.SetErrorHandler(c.reportPersistError)
	c.engine.AddHook(func(tr slideshow.Transition) {
		slog.Info("controller: playback state changed", "from", tr.From, "to", tr.To, "index", tr.Index)
		c.presenter.PublishState(c.State())
	})
	for _, fn := range opts.Hooks {
		c.engine.AddHook(fn)
	}

	slides := models.SlidesFromImages(c.snap.Images)
	if err := c.engine.Initialize(slides, c.snap.Settings); err != nil {
		// Only reachable when the store skipped migration.
		slog.Warn("controller: invalid stored slide duration, using default", "err", err)
		c.snap.Settings.SlideDuration = models.DefaultSettings().SlideDuration
		if err := c.engine.Initialize(slides, c.snap.Settings); err != nil {
			c.gate.Close()
			c.engine.Close()
			return nil, fmt.Errorf("controller: starting engine: %w", err)
		}
	}
	return c, nil
}

// AddHook registers fn for engine phase transitions. Transitions that
// happened before the call are not replayed; use Options.Hooks to observe
// startup.
func (c *Controller) AddHook(fn func(slideshow.Transition)) {
	c.engine.AddHook(fn)
}

// State returns a deep copy of the complete system state.
func (c *Controller) State() models.State {
	c.mu.RLock()
	snap := c.snap.DeepCopy()
	fullscreen := c.fullscreen
	c.mu.RUnlock()

	return models.State{
		Playback:   c.engine.State(),
		Settings:   snap.Settings,
		Images:     snap.Images,
		Lock:       c.gate.Status(),
		Fullscreen: fullscreen,
		Info:       c.info,
	}
}

// Info returns the system information.
func (c *Controller) Info() models.Info {
	info := c.info
	if t, err := identity.CPUTemp(); err == nil {
		info.CPUTempC = t
	}
	return info
}

// Close stops the engine and the gate and flushes pending writes.
func (c *Controller) Close() error {
	c.engine.Close()
	c.gate.Close()
	return c.store.Flush()
}

// apply is the core mutation primitive. It:
//  1. Serialises against other writers
//  2. Calls fn on a deep copy of the snapshot (fn may return an error to abort)
//  3. Stores the copy, persists it and reports persistence failures
//  4. Calls sync with the new snapshot (engine updates), then publishes state
func (c *Controller) apply(fn func(*models.Snapshot) error, sync func(models.Snapshot)) (models.Snapshot, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	next := c.snap.DeepCopy()
	if err := fn(&next); err != nil {
		c.mu.Unlock()
		return models.Snapshot{}, err
	}
	c.snap = next
	c.mu.Unlock()

	if err := c.store.Save(&next); err != nil {
		c.reportPersistError(err)
	}
	if sync != nil {
		sync(next)
	}
	c.presenter.PublishState(c.State())
	return next.DeepCopy(), nil
}

// reportPersistError keeps the in-memory change and tells clients that it
// could not be saved.
func (c *Controller) reportPersistError(err error) {
	slog.Error("controller: persisting snapshot failed", "err", err)
	appErr := models.ErrResourceExhausted("storage full: changes could not be saved and will be lost on restart")
	c.engine.NotifyError(appErr.Message)
}

func (c *Controller) requireUnlocked() error {
	if c.gate.Locked() {
		return models.ErrLocked
	}
	return nil
}

func (c *Controller) toggleFullscreen() {
	c.mu.Lock()
	c.fullscreen = !c.fullscreen
	c.mu.Unlock()
	c.presenter.ToggleFullscreen()
}

func (c *Controller) resync(snap models.Snapshot) {
	c.engine.Resync(models.SlidesFromImages(snap.Images))
}
