package api

import (
	"net/http"
	"strings"

	"github.com/brianhealey/slidepi/internal/models"
)

// createBackup triggers an immediate backup and returns the archive.
func (h *Handlers) createBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, models.ErrNotFound("backups are disabled"))
		return
	}
	b, err := h.backups.RunBackupNow()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// listBackups returns the available backup archives.
func (h *Handlers) listBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, models.ErrNotFound("backups are disabled"))
		return
	}
	files, err := h.backups.ListBackups()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": files})
}

// restoreBackup accepts a .tar.gz upload in the "backup" field and extracts
// it over the config and media directories.
func (h *Handlers) restoreBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, models.ErrNotFound("backups are disabled"))
		return
	}
	if h.ctrl.LockStatus().Locked {
		writeError(w, models.ErrLocked)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, models.ErrBadRequest("failed to parse multipart form: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("backup")
	if err != nil {
		writeError(w, models.ErrBadRequest("missing backup file in form field 'backup': "+err.Error()))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(header.Filename, ".tar.gz") {
		writeError(w, models.ErrBadRequest("backup file must be a .tar.gz archive"))
		return
	}
	if err := h.backups.Restore(file); err != nil {
		writeError(w, models.ErrBadRequest("restore failed: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"details": "restored " + header.Filename + "; restart slidepi to load it",
	})
}
