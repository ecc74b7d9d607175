package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/camden-git/surfaceinspect/logger"
)

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn("error encoding JSON response", "error", err)
		}
	}
}

type messageResponse struct {
	Message string `json:"message"`
}
