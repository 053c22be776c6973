// Package slideshow implements the playback engine: which slide is shown,
// when auto-advance fires and how far the current slide has progressed.
//
// The engine owns two timers, the auto-advance timer and the progress
// tracker. They are always started and cancelled together. Every restart bumps
// a generation counter and timer callbacks carrying an older generation are
// discarded, so a callback that was already in flight when a slide changed can
// never act on the new slide.
package slideshow

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/brianhealey/slidepi/internal/models"
)

// NoSlide is passed to Adapter.RenderSlide when the collection is empty and the
// placeholder should be shown.
const NoSlide = -1

// DefaultTick is the progress tracker interval.
const DefaultTick = 50 * time.Millisecond

// ErrInvalidDuration is returned for non-positive or non-finite durations.
var ErrInvalidDuration = errors.New("slideshow: slide duration must be a positive number of seconds")

// Adapter renders engine state. Calls are made while the engine lock is held:
// implementations must not block and must not call back into the engine.
type Adapter interface {
	RenderSlide(index int)
	RenderProgress(percent float64)
	RenderPauseState(paused bool)
	NotifyError(msg string)
}

// Transition describes a phase change. Index is the current slide after the
// change, or NoSlide.
type Transition struct {
	From  models.PlaybackState
	To    models.PlaybackState
	Index int
}

// Options configures a new Engine.
type Options struct {
	// Paused starts the engine paused.
	Paused bool
	// Tick overrides DefaultTick.
	Tick time.Duration
}

// Engine is the slideshow state machine. All methods are safe for concurrent
// use; calls and timer callbacks are serialised by a single mutex.
type Engine struct {
	mu       sync.Mutex
	adapter  Adapter
	slides   []models.Slide
	index    int
	paused   bool
	hidden   bool
	running  bool
	closed   bool
	phase    models.PlaybackState
	duration time.Duration
	tick     time.Duration
	origin   time.Time
	gen      uint64
	advance  *time.Timer
	progress *time.Timer

	hooks   []func(Transition)
	pending []Transition
}

// New creates an Idle engine. A nil adapter discards all notifications.
func New(adapter Adapter, opts Options) *Engine {
	if adapter == nil {
		adapter = nopAdapter{}
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Engine{
		adapter:  adapter,
		index:    NoSlide,
		paused:   opts.Paused,
		phase:    models.PlaybackIdle,
		duration: secondsToDuration(models.DefaultSettings().SlideDuration),
		tick:     tick,
	}
}

// AddHook registers fn to run after every phase transition. Hooks run in
// registration order after the engine lock has been released.
func (e *Engine) AddHook(fn func(Transition)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Initialize loads a slide set and timing from settings. The current index is
// settings.StartSlide clamped into range, and auto-advance starts unless the
// engine is paused or hidden.
func (e *Engine) Initialize(slides []models.Slide, settings models.Settings) error {
	d, ok := validSeconds(settings.SlideDuration)
	if !ok {
		return ErrInvalidDuration
	}

	e.mu.Lock()
	defer e.flush()
	if e.closed {
		return nil
	}

	e.slides = cloneSlides(slides)
	e.duration = d
	e.index = models.ClampIndex(settings.StartSlide, len(e.slides))
	e.adapter.RenderPauseState(e.paused)
	e.showLocked()
	slog.Debug("slideshow: initialized", "count", len(e.slides), "index", e.index, "duration", d)
	return nil
}

// GoTo jumps to index. Out-of-range indexes, including any index while the
// collection is empty, are ignored and GoTo reports false.
func (e *Engine) GoTo(index int) bool {
	e.mu.Lock()
	defer e.flush()
	if e.closed || index < 0 || index >= len(e.slides) {
		return false
	}
	e.index = index
	e.showLocked()
	return true
}

// Next advances one slide, wrapping to the first after the last.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.flush()
	e.stepLocked(1)
}

// Previous goes back one slide, wrapping to the last before the first.
func (e *Engine) Previous() {
	e.mu.Lock()
	defer e.flush()
	e.stepLocked(-1)
}

func (e *Engine) stepLocked(delta int) {
	n := len(e.slides)
	if e.closed || n == 0 {
		return
	}
	e.index = ((e.index+delta)%n + n) % n
	e.showLocked()
}

// Play resumes auto-advance from a fresh progress origin.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.flush()
	e.setPausedLocked(false)
}

// Pause stops auto-advance and the progress tracker. Displayed progress
// resets to zero.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.flush()
	e.setPausedLocked(true)
}

// TogglePause flips the paused flag and returns the new value.
func (e *Engine) TogglePause() bool {
	e.mu.Lock()
	defer e.flush()
	e.setPausedLocked(!e.paused)
	return e.paused
}

func (e *Engine) setPausedLocked(paused bool) {
	if e.closed || e.paused == paused {
		return
	}
	e.paused = paused
	e.restartLocked()
	e.adapter.RenderPauseState(paused)
	e.updatePhaseLocked()
}

// Retime changes the slide duration. Progress resets and running timers are
// restarted with the new interval; the current index is unchanged.
func (e *Engine) Retime(seconds float64) error {
	d, ok := validSeconds(seconds)
	if !ok {
		return ErrInvalidDuration
	}
	e.mu.Lock()
	defer e.flush()
	if e.closed {
		return nil
	}
	e.duration = d
	e.restartLocked()
	return nil
}

// Resync replaces the slide set after the image collection changed.
//
// The index is clamped to the new size. An empty set puts the engine in Idle
// with no timers and renders the placeholder. A non-empty set arriving while
// Idle starts over at the first slide.
func (e *Engine) Resync(slides []models.Slide) {
	e.mu.Lock()
	defer e.flush()
	if e.closed {
		return
	}

	prev := e.currentSlideLocked()
	wasEmpty := len(e.slides) == 0
	e.slides = cloneSlides(slides)

	switch {
	case len(e.slides) == 0:
		e.index = NoSlide
		e.showLocked()
	case wasEmpty:
		e.index = 0
		e.showLocked()
	default:
		idx := min(e.index, len(e.slides)-1)
		if idx != e.index || prev == nil || prev.ID != e.slides[idx].ID {
			e.index = idx
			e.showLocked()
		}
	}
}

// SetHidden reports page visibility. Hidden stops the timers without touching
// the paused flag; becoming visible restarts them unless paused.
func (e *Engine) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.flush()
	if e.closed || e.hidden == hidden {
		return
	}
	e.hidden = hidden
	e.restartLocked()
}

// Phase returns the current state machine phase.
func (e *Engine) Phase() models.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Slides returns a copy of the current slide set.
func (e *Engine) Slides() []models.Slide {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSlides(e.slides)
}

// State returns a snapshot of the playback state.
func (e *Engine) State() models.Playback {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := models.Playback{
		State:           e.phase,
		Count:           len(e.slides),
		Paused:          e.paused,
		Running:         e.running,
		Hidden:          e.hidden,
		SlideDurationMs: e.duration.Milliseconds(),
	}
	if e.index != NoSlide {
		idx := e.index
		p.CurrentIndex = &idx
	}
	if e.running {
		p.ProgressPercent = e.percentLocked(time.Now())
	}
	return p
}

// NotifyError forwards a user-facing error to the adapter.
func (e *Engine) NotifyError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.adapter.NotifyError(msg)
}

// Close cancels both timers. Later calls and any callback already in flight
// have no effect.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.stopLocked()
	e.pending = nil
}

// showLocked renders the current index and restarts both timers.
func (e *Engine) showLocked() {
	e.restartLocked()
	e.adapter.RenderSlide(e.index)
	e.updatePhaseLocked()
}

// restartLocked cancels both timers, resets progress and, if the engine should
// be running, schedules both again from a fresh origin.
func (e *Engine) restartLocked() {
	e.stopLocked()
	e.adapter.RenderProgress(0)
	if e.paused || e.hidden || len(e.slides) == 0 {
		return
	}

	gen := e.gen
	e.origin = time.Now()
	e.running = true
	e.advance = time.AfterFunc(e.duration, func() { e.onAdvance(gen) })
	e.progress = time.AfterFunc(e.tick, func() { e.onTick(gen) })
}

func (e *Engine) stopLocked() {
	e.gen++
	e.running = false
	if e.advance != nil {
		e.advance.Stop()
		e.advance = nil
	}
	if e.progress != nil {
		e.progress.Stop()
		e.progress = nil
	}
}

func (e *Engine) onAdvance(gen uint64) {
	e.mu.Lock()
	defer e.flush()
	if e.closed || gen != e.gen {
		return
	}
	e.stepLocked(1)
}

func (e *Engine) onTick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.gen {
		return
	}
	e.adapter.RenderProgress(e.percentLocked(time.Now()))
	e.progress = time.AfterFunc(e.tick, func() { e.onTick(gen) })
}

func (e *Engine) percentLocked(now time.Time) float64 {
	if e.duration <= 0 {
		return 0
	}
	pct := float64(now.Sub(e.origin)) / float64(e.duration) * 100
	return math.Min(math.Max(pct, 0), 100)
}

func (e *Engine) currentSlideLocked() *models.Slide {
	if e.index < 0 || e.index >= len(e.slides) {
		return nil
	}
	s := e.slides[e.index]
	return &s
}

func (e *Engine) updatePhaseLocked() {
	next := models.PlaybackPlaying
	switch {
	case len(e.slides) == 0:
		next = models.PlaybackIdle
	case e.paused:
		next = models.PlaybackPaused
	}
	if next == e.phase {
		return
	}
	e.pending = append(e.pending, Transition{From: e.phase, To: next, Index: e.index})
	slog.Debug("slideshow: phase changed", "from", e.phase, "to", next, "index", e.index)
	e.phase = next
}

// flush releases the lock and runs hooks for transitions recorded while it
// was held.
func (e *Engine) flush() {
	pending := e.pending
	e.pending = nil
	hooks := e.hooks
	e.mu.Unlock()

	for _, tr := range pending {
		for _, fn := range hooks {
			fn(tr)
		}
	}
}

func validSeconds(seconds float64) (time.Duration, bool) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, false
	}
	d := secondsToDuration(seconds)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func cloneSlides(slides []models.Slide) []models.Slide {
	out := make([]models.Slide, len(slides))
	copy(out, slides)
	return out
}

type nopAdapter struct{}

func (nopAdapter) RenderSlide(int)        {}
func (nopAdapter) RenderProgress(float64) {}
func (nopAdapter) RenderPauseState(bool)  {}
func (nopAdapter) NotifyError(string)     {}
