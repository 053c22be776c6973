package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brianhealey/slidepi/internal/models"
)

func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

func (h *Handlers) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Info())
}

// attemptAction runs one of the gated gestures: pause, next, prev,
// fullscreen or settings.
func (h *Handlers) attemptAction(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Attempt(chi.URLParam(r, "action"))
	writeAction(w, res, err)
}

func (h *Handlers) play(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Play()
	writeAction(w, res, err)
}

func (h *Handlers) pause(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Pause()
	writeAction(w, res, err)
}

func (h *Handlers) goTo(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := h.ctrl.GoTo(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) setVisibility(w http.ResponseWriter, r *http.Request) {
	var req models.VisibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.SetVisibility(req.Client, req.Hidden))
}
