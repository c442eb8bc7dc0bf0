package api

import (
	"encoding/json"
	"net/http"

	"github.com/grimoire-ai/grimoire/internal/log"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code. Encoding
// failures after WriteHeader can only be logged.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, errCode, message string, logger log.Logger) {
	writeJSON(w, status, ErrorResponse{Error: errCode, Message: message}, logger)
}
