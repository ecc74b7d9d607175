package handlers

import (
	"net/http"
	"time"

	"github.com/camden-git/surfaceinspect/logger"
)

// DetectorStatus reports whether the detector has been loaded yet.
type DetectorStatus interface {
	Loaded() bool
}

type HealthHandler struct {
	Detector DetectorStatus
	Log      *logger.Logger
	now      func() time.Time
}

func (h *HealthHandler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// Root handles GET /.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Log, http.StatusOK, map[string]string{
		"status":  "running",
		"message": "Surface inspection API is running",
	})
}

// Health handles GET /health. The detector loads lazily, so an unloaded
// detector is reported but not treated as unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	loaded := false
	if h.Detector != nil {
		loaded = h.Detector.Loaded()
	}
	writeJSON(w, h.Log, http.StatusOK, map[string]any{
		"status":          "healthy",
		"time":            h.clock().UTC().Format(time.RFC3339),
		"detector_loaded": loaded,
	})
}
