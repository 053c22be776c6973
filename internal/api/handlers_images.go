package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/brianhealey/slidepi/internal/models"
)

// uploadField is the multipart form field carrying image files.
const uploadField = "file"

func (h *Handlers) getImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"images": h.ctrl.Images()})
}

// uploadImages accepts one or more files in the "file" field. Files are added
// in order; a failing file is reported and the rest are still added.
func (h *Handlers) uploadImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, models.ErrTooLarge("upload exceeds the request size limit"))
			return
		}
		writeError(w, models.ErrBadRequest("failed to parse multipart form: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		writeError(w, models.ErrBadRequest("missing image files in form field '"+uploadField+"'"))
		return
	}

	added := []models.Image{}
	var failed []*models.AppError
	var firstErr error
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			failed = append(failed, models.ErrBadRequest(fh.Filename+": "+err.Error()))
			continue
		}
		img, err := h.ctrl.AddImage(f, fh.Filename)
		f.Close()
		if err != nil {
			slog.Warn("api: image upload rejected", "file", fh.Filename, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			var appErr *models.AppError
			if !errors.As(err, &appErr) {
				appErr = models.ErrInternal(err.Error())
			}
			failed = append(failed, appErr)
			continue
		}
		added = append(added, img)
	}

	if len(added) == 0 && firstErr != nil {
		writeError(w, firstErr)
		return
	}
	body := map[string]any{"images": added}
	if len(failed) > 0 {
		body["errors"] = failed
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handlers) renameImage(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var upd models.ImageUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	img, err := h.ctrl.RenameImage(id, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (h *Handlers) moveImage(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req models.MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	images, err := h.ctrl.MoveImage(id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (h *Handlers) deleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.DeleteImage(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
