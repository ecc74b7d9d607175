package handlers

import (
	"context"
	"net/http"

	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
	"github.com/camden-git/surfaceinspect/services"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// IdentityContextKey is the key used to store the verified identity in the request context.
	IdentityContextKey ContextKey = "identity"
)

// AuthMiddleware verifies the bearer token before any handler work happens,
// including reading the request body, and stores the identity in the context.
func AuthMiddleware(auth *services.AuthService, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity stored by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	if !ok || identity.UID == "" {
		return models.Identity{}, false
	}
	return identity, true
}

// requireIdentity writes a 500 when a protected handler runs without AuthMiddleware.
func requireIdentity(w http.ResponseWriter, r *http.Request, log *logger.Logger) (models.Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		// This should not happen if AuthMiddleware ran successfully
		log.Error("identity missing from request context", "path", r.URL.Path)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return models.Identity{}, false
	}
	return identity, true
}
