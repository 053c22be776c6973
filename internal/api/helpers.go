// Package api implements the HTTP REST API for SlidePi.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brianhealey/slidepi/internal/maintenance"
	"github.com/brianhealey/slidepi/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctrl      Controller
	events    EventBus
	backups   Backups
	maxUpload int64
}

// Controller is the interface the handlers use to interact with the system state.
type Controller interface {
	State() models.State
	Info() models.Info

	Attempt(action string) (models.ActionResult, error)
	Play() (models.ActionResult, error)
	Pause() (models.ActionResult, error)
	GoTo(index int) (models.State, error)
	SetVisibility(client string, hidden bool) models.State
	ViewerConnected(client string)
	ViewerGone(client string)

	Settings() models.Settings
	UpdateSettings(u models.SettingsUpdate) (models.Settings, error)
	ResetSettings() (models.Settings, error)

	Images() []models.Image
	AddImage(r io.Reader, fileName string) (models.Image, error)
	RenameImage(id int, u models.ImageUpdate) (models.Image, error)
	MoveImage(id int, req models.MoveRequest) ([]models.Image, error)
	DeleteImage(id int) error

	LockStatus() models.LockStatus
	Lock() (models.State, error)
	Unlock(password string) (models.State, error)
	SetCredential(req models.CredentialUpdate) error
}

// EventBus is the interface for subscribing to engine and state events.
type EventBus interface {
	Subscribe(id string) <-chan models.Event
	Unsubscribe(id string)
}

// Backups creates, lists and restores backup archives.
type Backups interface {
	RunBackupNow() (maintenance.Backup, error)
	ListBackups() ([]maintenance.Backup, error)
	Restore(r io.Reader) error
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response. Other errors become 500s.
func writeError(w http.ResponseWriter, err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, appErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, models.ErrInternal(err.Error()))
}

// writeAction answers a gated call: 202 when the action waits for the
// password, 200 when it ran.
func writeAction(w http.ResponseWriter, res models.ActionResult, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Pending != "" {
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// intParam reads an integer path parameter by name.
func intParam(r *http.Request, name string) (int, error) {
	s := chi.URLParam(r, name)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, models.ErrBadRequest("invalid " + name + " parameter")
	}
	return n, nil
}
