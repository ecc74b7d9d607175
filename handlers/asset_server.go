package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/media"
)

// ImageServer serves stored upload artifacts by bare filename, e.g.
//
//	r.Get("/api/images/{filename}", ImageServer(store, log))
//
// Anything that is not a single plain filename is rejected before the store is
// consulted.
func ImageServer(store media.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		if !media.ValidFilename(filename) {
			log.Warn("SECURITY: rejected artifact path", "path", r.URL.Path, "remote", r.RemoteAddr)
			WriteAPIError(w, http.StatusBadRequest, "invalid_path", "Invalid image path")
			return
		}

		file, info, err := store.Open(filename)
		if errors.Is(err, os.ErrNotExist) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "Image not found")
			return
		} else if err != nil {
			log.Error("error opening artifact", "file", filename, "error", err)
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			return
		}
		defer file.Close()

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if seeker, ok := file.(io.ReadSeeker); ok {
			http.ServeContent(w, r, filename, info.ModTime(), seeker)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(info.Size()))
		if _, err := io.Copy(w, file); err != nil {
			log.Debug("artifact copy interrupted", "file", filename, "error", err)
		}
	}
}
