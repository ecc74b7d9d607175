package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
	"github.com/camden-git/surfaceinspect/services"
)

const maxProfileBody = 64 << 10

type ProfileHandler struct {
	Service *services.ProfileService
	Log     *logger.Logger
}

type profileResponse struct {
	User models.Profile `json:"user"`
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.Log)
	if !ok {
		return
	}

	profile, err := h.Service.Get(r.Context(), identity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	writeJSON(w, h.Log, http.StatusOK, profileResponse{User: profile})
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.Log)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProfileBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Profile payload too large")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Could not read request body")
		return
	}

	if err := h.Service.Update(r.Context(), identity.UID, body); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	writeJSON(w, h.Log, http.StatusOK, messageResponse{Message: "Profile updated successfully"})
}
