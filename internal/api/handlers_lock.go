package api

import (
	"net/http"

	"github.com/brianhealey/slidepi/internal/models"
)

func (h *Handlers) getLock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.LockStatus())
}

func (h *Handlers) lock(w http.ResponseWriter, r *http.Request) {
	state, err := h.ctrl.Lock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// unlock checks the password and, on success, runs the pending action.
func (h *Handlers) unlock(w http.ResponseWriter, r *http.Request) {
	var req models.UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := h.ctrl.Unlock(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) setCredential(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.SetCredential(req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.LockStatus())
}
