package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorResponse is the uniform error body returned by the gateway.
type errorResponse struct {
	Error string `json:"error"`
}

// marshalFailedBody is pre-marshaled so an encoding failure can still
// produce a valid JSON error body.
var marshalFailedBody = []byte(`{"error":"failed to encode response"}`)

// writeJSONResponse marshals payload and writes it with the given status.
func writeJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("writeJSONResponse: marshal failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(marshalFailedBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("writeJSONResponse: write failed", "error", err)
	}
}

// writeJSONError writes a JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, errorResponse{Error: message})
}
