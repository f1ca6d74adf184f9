package speech

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler serves synthesized clips over HTTP.
type Handler struct {
	audioDir string
}

// NewHandler creates the clip-serving handler.
func NewHandler(audioDir string) *Handler {
	return &Handler{audioDir: audioDir}
}

// RegisterRoutes mounts the audio routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audio/{filename}", h.serveClip)
}

func (h *Handler) serveClip(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	// Clip filenames are generated internally; anything else is a
	// traversal attempt or a stale link.
	if filename != filepath.Base(filename) || !strings.HasSuffix(filename, ".mp3") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	// Clips are content-addressed, so they never change once written.
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, filepath.Join(h.audioDir, filename))
}
