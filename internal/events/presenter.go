package events

import (
	"log/slog"

	"github.com/brianhealey/slidepi/internal/models"
)

// Presenter turns engine and lock notifications into bus events. It satisfies
// slideshow.Adapter and lock.Requester and never blocks.
type Presenter struct {
	bus *Bus
}

// NewPresenter returns a Presenter publishing to bus.
func NewPresenter(bus *Bus) *Presenter {
	return &Presenter{bus: bus}
}

// RenderSlide publishes the current index; -1 means the placeholder.
func (p *Presenter) RenderSlide(index int) {
	p.bus.Publish(models.Event{Type: models.EventSlide, Index: &index})
}

// RenderProgress publishes the progress of the current slide in percent.
func (p *Presenter) RenderProgress(percent float64) {
	p.bus.Publish(models.Event{Type: models.EventProgress, Percent: &percent})
}

// RenderPauseState publishes the paused flag.
func (p *Presenter) RenderPauseState(paused bool) {
	p.bus.Publish(models.Event{Type: models.EventPause, Paused: &paused})
}

// NotifyError publishes a user-facing error.
func (p *Presenter) NotifyError(msg string) {
	slog.Warn("events: reporting error to clients", "msg", msg)
	p.bus.Publish(models.Event{Type: models.EventError, Message: msg})
}

// RequestCredential asks clients to show the password prompt for action.
func (p *Presenter) RequestCredential(action string) {
	p.bus.Publish(models.Event{Type: models.EventCredential, Action: action})
}

// ToggleFullscreen asks clients to enter or leave fullscreen.
func (p *Presenter) ToggleFullscreen() {
	p.bus.Publish(models.Event{Type: models.EventFullscreen})
}

// OpenSettings tells clients the settings panel may be opened.
func (p *Presenter) OpenSettings() {
	p.bus.Publish(models.Event{Type: models.EventSettings})
}

// PublishState publishes a full state after a settings, gallery or lock change.
func (p *Presenter) PublishState(st models.State) {
	p.bus.Publish(models.Event{Type: models.EventState, State: &st})
}
