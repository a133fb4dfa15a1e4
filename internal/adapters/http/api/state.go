// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// StateDependencies defines the interface for state queries.
type StateDependencies interface {
	SessionState(ctx context.Context, sessionID string) (StateView, error)
}

// StateHandler handles session state requests.
type StateHandler struct {
	deps StateDependencies
}

// NewStateHandler creates a new state handler.
func NewStateHandler(deps StateDependencies) *StateHandler {
	return &StateHandler{deps: deps}
}

// HandleGetState handles GET /sessions/{id}/state requests.
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.get_state"

	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	state, err := h.deps.SessionState(r.Context(), sessionID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}
