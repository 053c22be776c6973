// Package lock implements the password gate over the slideshow controls.
//
// While locked, a gated action is not executed. It is remembered as pending
// and the presentation layer is asked for the password. A successful Unlock
// runs the pending action exactly once and leaves the gate open for the rest
// of the session. A failed Unlock drops the pending action.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/brianhealey/slidepi/internal/models"
)

const credentialFileName = "lock.json"

// Action names a gated operation.
type Action string

// Gated actions.
const (
	ActionPause      Action = "pause"
	ActionNext       Action = "next"
	ActionPrev       Action = "prev"
	ActionFullscreen Action = "fullscreen"
	ActionSettings   Action = "settings"
)

// Actions lists every gated action.
var Actions = []Action{ActionPause, ActionNext, ActionPrev, ActionFullscreen, ActionSettings}

// ParseAction returns the Action named s.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

var (
	// ErrUnknownAction is returned for names outside the gated set.
	ErrUnknownAction = errors.New("lock: unknown action")
	// ErrNoCredential is returned when arming a gate that has no password.
	ErrNoCredential = models.ErrConflict("no lock password has been set")
)

// Requester asks the user for the password. It must not block.
type Requester interface {
	RequestCredential(action string)
}

// Options configures a Gate.
type Options struct {
	// ConfigDir holds lock.json. Empty keeps the credential in memory only.
	ConfigDir string
	Requester Requester
	// Executors run the gated actions.
	Executors map[Action]func()
	// Limiter throttles Unlock and SetCredential. Defaults to a burst of 5
	// attempts refilling one every 2 seconds.
	Limiter *rate.Limiter
	// Cost is the bcrypt cost for new hashes.
	Cost int
}

type credentialFile struct {
	PasswordHash string `json:"password_hash"`
	Locked       bool   `json:"locked"`
}

// Gate is the lock gate. It is safe for concurrent use.
type Gate struct {
	mu        sync.Mutex
	path      string
	hash      []byte
	armed     bool // persisted: start locked
	locked    bool
	pending   Action
	requester Requester
	executors map[Action]func()
	limiter   *rate.Limiter
	cost      int
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// NewGate loads lock.json from opts.ConfigDir and watches it for changes.
// A missing file leaves the gate unlocked with no password.
func NewGate(opts Options) (*Gate, error) {
	g := &Gate{
		requester: opts.Requester,
		executors: make(map[Action]func()),
		limiter:   opts.Limiter,
		cost:      opts.Cost,
		done:      make(chan struct{}),
	}
	for a, fn := range opts.Executors {
		g.executors[a] = fn
	}
	if g.limiter == nil {
		g.limiter = rate.NewLimiter(rate.Every(2*time.Second), 5)
	}
	if g.cost == 0 {
		g.cost = bcrypt.DefaultCost
	}
	if opts.ConfigDir == "" {
		return g, nil
	}

	g.path = filepath.Join(opts.ConfigDir, credentialFileName)
	if err := g.Reload(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.locked = g.armed && len(g.hash) > 0
	g.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("lock: could not create fsnotify watcher", "err", err)
		return g, nil
	}
	if err := os.MkdirAll(opts.ConfigDir, 0755); err != nil {
		slog.Warn("lock: could not create config dir", "err", err)
	}
	if err := watcher.Add(opts.ConfigDir); err != nil {
		slog.Warn("lock: could not watch config dir", "err", err)
	}
	g.watcher = watcher
	go g.watchLoop()
	return g, nil
}

// Handle sets the executor for action, replacing any previous one.
func (g *Gate) Handle(action Action, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executors[action] = fn
}

// SetRequester replaces the credential requester.
func (g *Gate) SetRequester(r Requester) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requester = r
}

// Attempt runs action if the gate is open and reports whether it ran. While
// locked the action becomes pending, the requester is asked for the password
// and Attempt returns false.
func (g *Gate) Attempt(action Action) (bool, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return false, err
	}

	g.mu.Lock()
	if g.locked {
		g.pending = action
		if g.requester != nil {
			g.requester.RequestCredential(string(action))
		}
		g.mu.Unlock()
		slog.Debug("lock: deferred action", "action", action)
		return false, nil
	}
	fn := g.executors[action]
	g.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true, nil
}

// Unlock checks password. On a match the gate opens and any pending action
// runs. On a mismatch the pending action is discarded and
// models.ErrInvalidCredential is returned. Unlocking an open gate is a no-op.
func (g *Gate) Unlock(password string) error {
	g.mu.Lock()
	if !g.locked {
		g.mu.Unlock()
		return nil
	}
	if !g.limiter.Allow() {
		g.mu.Unlock()
		return models.ErrTooManyAttempts
	}
	if bcrypt.CompareHashAndPassword(g.hash, []byte(password)) != nil {
		dropped := g.pending
		g.pending = ""
		g.mu.Unlock()
		slog.Info("lock: rejected unlock attempt", "dropped", dropped)
		return models.ErrInvalidCredential
	}

	action := g.pending
	g.pending = ""
	g.locked = false
	fn := g.executors[action]
	g.mu.Unlock()

	slog.Info("lock: unlocked", "pending", action)
	if action != "" && fn != nil {
		fn()
	}
	return nil
}

// Lock re-arms the gate. It fails with ErrNoCredential when no password is
// set. The armed state is persisted so the gate starts locked after a restart.
func (g *Gate) Lock() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.hash) == 0 {
		return ErrNoCredential
	}
	g.locked = true
	g.pending = ""
	if !g.armed {
		g.armed = true
		if err := g.writeLocked(); err != nil {
			return err
		}
	}
	slog.Info("lock: armed")
	return nil
}

// SetCredential changes the password. When a password is already set,
// current must match it.
func (g *Gate) SetCredential(current, next string) error {
	if next == "" {
		return models.ErrBadRequest("password must not be empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.hash) > 0 {
		if !g.limiter.Allow() {
			return models.ErrTooManyAttempts
		}
		if bcrypt.CompareHashAndPassword(g.hash, []byte(current)) != nil {
			return models.ErrInvalidCredential
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), g.cost)
	if err != nil {
		return fmt.Errorf("lock: hashing password: %w", err)
	}
	g.hash = hash
	slog.Info("lock: credential changed")
	return g.writeLocked()
}

// Seed sets password only if none is set yet.
func (g *Gate) Seed(password string) error {
	g.mu.Lock()
	has := len(g.hash) > 0
	g.mu.Unlock()
	if has || password == "" {
		return nil
	}
	return g.SetCredential("", password)
}

// Locked reports whether gated actions are currently deferred.
func (g *Gate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

// Status returns the gate state for clients.
func (g *Gate) Status() models.LockStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return models.LockStatus{
		Locked:        g.locked,
		Pending:       string(g.pending),
		HasCredential: len(g.hash) > 0,
	}
}

// Reload re-reads lock.json. Removing the password opens the gate.
func (g *Gate) Reload() error {
	if g.path == "" {
		return nil
	}
	var f credentialFile
	data, err := os.ReadFile(g.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("lock: reading %s: %w", g.path, err)
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("lock: parsing %s: %w", g.path, err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.hash = []byte(f.PasswordHash)
	g.armed = f.Locked
	if len(g.hash) == 0 {
		g.locked = false
		g.pending = ""
	}
	slog.Debug("lock: reloaded credential", "has_credential", len(g.hash) > 0)
	return nil
}

// Close stops the file watcher.
func (g *Gate) Close() {
	if g.watcher != nil {
		g.watcher.Close()
		<-g.done
	}
}

func (g *Gate) writeLocked() error {
	if g.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(credentialFile{PasswordHash: string(g.hash), Locked: g.armed}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return err
	}
	tmpPath := g.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, g.path)
}

func (g *Gate) watchLoop() {
	defer close(g.done)
	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			if event.Name == g.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove)) {
				if err := g.Reload(); err != nil {
					slog.Warn("lock: failed to reload credential", "err", err)
				}
			}
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("lock: watcher error", "err", err)
		}
	}
}
