package handlers

import (
	"net/http"

	"github.com/moodtunes/backend/internal/models"
)

// SessionIDGenerator produces fresh session ids.
type SessionIDGenerator interface {
	Generate() (string, error)
}

// SessionHandler hands out session ids for clients that want something
// harder to guess than "default".
type SessionHandler struct {
	ids SessionIDGenerator
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(ids SessionIDGenerator) *SessionHandler {
	return &SessionHandler{ids: ids}
}

// New returns a session id nobody is listening on yet.
func (h *SessionHandler) New(w http.ResponseWriter, r *http.Request) {
	id, err := h.ids.Generate()
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSessionResponse{SessionID: id})
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
