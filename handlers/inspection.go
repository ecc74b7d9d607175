package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
	"github.com/camden-git/surfaceinspect/services"
)

const multipartMemory = 8 << 20

type InspectionHandler struct {
	Service        *services.InspectionService
	MaxUploadBytes int64
	Log            *logger.Logger
}

type inspectionListResponse struct {
	Inspections []models.Inspection `json:"inspections"`
}

// Analyze handles POST /api/analyze with a multipart "image" field.
func (h *InspectionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.Log)
	if !ok {
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Request must be multipart/form-data with an image field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "No image uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Could not read uploaded image")
		return
	}

	result, err := h.Service.Analyze(r.Context(), identity.UID, services.Upload{Filename: header.Filename, Data: data})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	writeJSON(w, h.Log, http.StatusCreated, result)
}

// ListInspections handles GET /api/inspections.
func (h *InspectionHandler) ListInspections(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.Log)
	if !ok {
		return
	}

	inspections, err := h.Service.List(r.Context(), identity.UID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	writeJSON(w, h.Log, http.StatusOK, inspectionListResponse{Inspections: inspections})
}

// DeleteInspection handles DELETE /api/inspections/{inspection_id}.
func (h *InspectionHandler) DeleteInspection(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.Log)
	if !ok {
		return
	}

	id := chi.URLParam(r, "inspection_id")
	if err := h.Service.Delete(r.Context(), identity.UID, id); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	writeJSON(w, h.Log, http.StatusOK, messageResponse{Message: "Inspection deleted successfully"})
}
