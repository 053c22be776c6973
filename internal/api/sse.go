package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brianhealey/slidepi/internal/models"
)

// keepAlive is how often an idle stream gets a comment line so proxies keep
// it open.
const keepAlive = 15 * time.Second

// sseEvents handles the SSE (Server-Sent Events) endpoint.
// Clients receive the current state immediately, then engine and state events
// as they happen.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	// Verify the client supports streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	id := uuid.New().String()
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	// Browser pages identify themselves so their visibility can be tracked
	// for as long as the stream stays open.
	if viewer := r.URL.Query().Get("client"); viewer != "" && len(viewer) <= 64 {
		h.ctrl.ViewerConnected(viewer)
		defer h.ctrl.ViewerGone(viewer)
	}

	// Send current state immediately
	st := h.ctrl.State()
	sendSSE(w, flusher, models.Event{Type: models.EventState, State: &st})

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, ev)
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
