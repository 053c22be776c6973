package api

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options holds the optional parts of the router.
type Options struct {
	// Media serves uploaded files. It is mounted at /media with the prefix
	// stripped.
	Media http.Handler
	// Backups enables the backup endpoints.
	Backups Backups
	// UI is the static web UI served at /.
	UI fs.FS
	// MaxUploadBytes caps a whole multipart upload request. Defaults to 256 MiB.
	MaxUploadBytes int64
}

// NewRouter creates and returns the main HTTP router.
func NewRouter(ctrl Controller, bus EventBus, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{ctrl: ctrl, events: bus, backups: opts.Backups, maxUpload: opts.MaxUploadBytes}
	if h.maxUpload <= 0 {
		h.maxUpload = 256 << 20
	}

	r.Route("/api", func(r chi.Router) {
		// System state
		r.Get("/", h.getState)
		r.Get("/info", h.getInfo)
		r.Get("/subscribe", h.sseEvents)

		// Playback
		r.Post("/actions/{action}", h.attemptAction)
		r.Post("/goto/{index}", h.goTo)
		r.Post("/play", h.play)
		r.Post("/pause", h.pause)
		r.Post("/visibility", h.setVisibility)

		// Settings
		r.Get("/settings", h.getSettings)
		r.Patch("/settings", h.updateSettings)
		r.Post("/settings/reset", h.resetSettings)

		// Gallery
		r.Get("/images", h.getImages)
		r.Post("/images", h.uploadImages)
		r.Patch("/images/{id}", h.renameImage)
		r.Post("/images/{id}/move", h.moveImage)
		r.Delete("/images/{id}", h.deleteImage)

		// Lock
		r.Get("/lock", h.getLock)
		r.Post("/lock", h.lock)
		r.Post("/unlock", h.unlock)
		r.Put("/lock/credential", h.setCredential)

		// Maintenance
		r.Post("/backup", h.createBackup)
		r.Get("/backups", h.listBackups)
		r.Post("/restore", h.restoreBackup)
	})

	if opts.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", opts.Media))
	}
	if opts.UI != nil {
		r.Handle("/*", http.FileServer(http.FS(opts.UI)))
	}

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
