package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/media"
	"github.com/camden-git/surfaceinspect/metrics"
	"github.com/camden-git/surfaceinspect/services"
)

// RouterDeps carries everything the HTTP layer needs.
type RouterDeps struct {
	Auth           *services.AuthService
	Inspections    *services.InspectionService
	Profiles       *services.ProfileService
	Artifacts      media.Store
	Detector       DetectorStatus
	Metrics        *metrics.Metrics
	Log            *logger.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// NewRouter builds the chi route tree.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	allowCredentials := true
	for _, o := range deps.AllowedOrigins {
		if o == "*" {
			// browsers reject credentialed wildcard responses
			allowCredentials = false
		}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Log, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(corsHandler.Handler)

	health := &HealthHandler{Detector: deps.Detector, Log: deps.Log}
	inspectionHandler := &InspectionHandler{Service: deps.Inspections, MaxUploadBytes: deps.MaxUploadBytes, Log: deps.Log}
	profileHandler := &ProfileHandler{Service: deps.Profiles, Log: deps.Log}

	r.Get("/", health.Root)
	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/images/{filename}", ImageServer(deps.Artifacts, deps.Log))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.Auth, deps.Log))

			r.Post("/analyze", inspectionHandler.Analyze)
			r.Route("/inspections", func(r chi.Router) {
				r.Get("/", inspectionHandler.ListInspections)
				r.Delete("/{inspection_id}", inspectionHandler.DeleteInspection)
			})
			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Put("/", profileHandler.UpdateProfile)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}
