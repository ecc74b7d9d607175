package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/logger"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// public messages per code; internal causes only go to the log
var errorDetails = map[string]string{
	"auth_missing":            "Missing or invalid credentials",
	"auth_invalid":            "Missing or invalid credentials",
	"auth_unavailable":        "Credentials cannot be verified right now, please retry",
	"not_found":               "Resource not found",
	"store_unavailable":       "Storage is temporarily unavailable, please retry",
	"detector_failure":        "Damage detection failed",
	"artifact_cleanup_failed": "Could not remove the inspection image, please retry",
	"internal_error":          "Internal server error",
}

// writeError classifies err and writes it in the standard error format.
// Client errors echo the cause; everything else gets a fixed message.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	ae := apierr.From(err)

	detail, ok := errorDetails[ae.Code]
	if !ok || ae.Code == "bad_request" {
		detail = ae.Error()
	}

	if ae.Status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", ae.Code, "error", err)
	} else {
		log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", ae.Code, "error", err)
	}

	WriteAPIError(w, ae.Status, ae.Code, detail)
}
