// Package events delivers slideshow notifications to SSE clients.
package events

import (
	"log/slog"
	"sync"

	"github.com/brianhealey/slidepi/internal/models"
)

// queueLen covers a little over a second of 50ms progress ticks.
const queueLen = 32

// Bus fans engine and state events out to stream subscribers without ever
// blocking the publisher.
//
// Progress ticks are lossy: a full queue just skips them, since the next tick
// supersedes the last. Any other event that does not fit evicts the
// subscriber and closes its channel. The stream then ends, the browser
// reconnects and starts again from a full state instead of showing a stale
// slide.
type Bus struct {
	mu      sync.Mutex
	streams map[string]chan models.Event
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{streams: make(map[string]chan models.Event)}
}

// Subscribe registers a stream under id. The channel is closed by
// Unsubscribe or when the stream falls behind.
func (b *Bus) Subscribe(id string) <-chan models.Event {
	ch := make(chan models.Event, queueLen)
	b.mu.Lock()
	if old, ok := b.streams[id]; ok {
		close(old)
	}
	b.streams[id] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe drops the stream. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(id)
}

// Publish queues ev on every stream.
func (b *Bus) Publish(ev models.Event) {
	lossy := ev.Type == models.EventProgress

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.streams {
		select {
		case ch <- ev:
		default:
			if lossy {
				continue
			}
			slog.Debug("events: evicting lagging stream", "id", id, "event", ev.Type)
			b.dropLocked(id)
		}
	}
}

// SubscriberCount reports how many streams are attached.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

func (b *Bus) dropLocked(id string) {
	if ch, ok := b.streams[id]; ok {
		delete(b.streams, id)
		close(ch)
	}
}
