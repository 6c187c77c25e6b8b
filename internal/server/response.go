package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jpalmerr/couponrelay/internal/store"
)

// responseDto is the envelope returned by the JSON endpoints.
type responseDto struct {
	Success       bool     `json:"success"`
	Status        int      `json:"status"`
	Data          any      `json:"data,omitempty"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body responseDto) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	writeJSON(w, logger, status, responseDto{Success: true, Status: status, Data: data})
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, responseDto{Status: status, ErrorMessages: []string{message}})
}

// statusFor maps coordinator errors to HTTP status codes. Input errors are
// the only ones a caller can fix.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrEmptyRequestID), errors.Is(err, store.ErrUnknownKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
