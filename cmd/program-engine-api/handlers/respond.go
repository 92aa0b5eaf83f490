// Package handlers provides HTTP handlers for the Program Engine API.
package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/tabular"
)

// ErrorDTO is the body of every error response.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, ErrorDTO{Error: message, Message: message, Detail: detail})
}

// statusFor maps pipeline and store errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		maxBytes *http.MaxBytesError
		csvErr   *csv.ParseError
	)
	switch {
	case errors.Is(err, tabular.ErrEmptyInput),
		errors.Is(err, tabular.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrNoSchedulableColumns),
		errors.As(err, &csvErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrImportInProgress):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrNoStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func eventIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "eventId"))
}
