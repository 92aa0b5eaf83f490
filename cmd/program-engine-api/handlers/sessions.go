package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

// SessionLister lists stored sessions of an event.
type SessionLister interface {
	ListSessions(ctx context.Context, eventID uuid.UUID) ([]*storage.SessionRecord, error)
}

// SessionsHandler serves stored program sessions.
type SessionsHandler struct {
	logger *observability.Logger
	store  SessionLister
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(logger *observability.Logger, store SessionLister) *SessionsHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &SessionsHandler{logger: logger, store: store}
}

// SessionListDTO is the response of the session list.
type SessionListDTO struct {
	EventID  string                   `json:"event_id"`
	Count    int                      `json:"count"`
	Sessions []*storage.SessionRecord `json:"sessions"`
}

// List handles GET /events/{eventId}/sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid eventId", err.Error())
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured", "")
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), eventID)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Str("event_id", eventID.String()).Msg("Failed to list sessions")
		writeError(w, statusFor(err), "failed to list sessions", err.Error())
		return
	}
	if sessions == nil {
		sessions = []*storage.SessionRecord{}
	}

	writeJSON(w, http.StatusOK, SessionListDTO{
		EventID:  eventID.String(),
		Count:    len(sessions),
		Sessions: sessions,
	})
}
