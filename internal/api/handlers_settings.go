package api

import (
	"net/http"

	"github.com/brianhealey/slidepi/internal/models"
)

func (h *Handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Settings())
}

func (h *Handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var upd models.SettingsUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.ctrl.UpdateSettings(upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) resetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.ctrl.ResetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
