// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// SessionDependencies defines the interface for session lifecycle operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context, id string) (SessionView, error)
	ListSessions(ctx context.Context) []SessionView
	DeleteSession(ctx context.Context, sessionID string) error
	ResetSession(ctx context.Context, sessionID string) error
}

// SessionsHandler handles session lifecycle requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleSessions handles POST /sessions and GET /sessions requests.
func (h *SessionsHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateSession(w, r)
	case http.MethodGet:
		h.handleListSessions(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionsHandler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"

	// An empty body means a server-generated id.
	var req createSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	view, err := h.deps.CreateSession(r.Context(), req.ID)
	if err != nil {
		if isConflict(err) {
			writeError(w, http.StatusConflict, "conflict", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *SessionsHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	views := h.deps.ListSessions(r.Context())
	writeJSON(w, http.StatusOK, views)
}

// HandleDeleteSession handles DELETE /sessions/{id} requests.
func (h *SessionsHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.delete_session"

	if err := h.deps.DeleteSession(r.Context(), sessionID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}

// HandleResetSession handles POST /sessions/{id}/reset requests.
func (h *SessionsHandler) HandleResetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.reset_session"

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.ResetSession(r.Context(), sessionID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "reset"})
}
