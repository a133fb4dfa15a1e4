// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/critic/internal/domain/model"
)

// Default and maximum page sizes for diagnostic reads.
const defaultDiagLimit = 20

// DiagnosticsDependencies defines the interface for diagnostic reads.
type DiagnosticsDependencies interface {
	Diagnostics(ctx context.Context, sessionID string, limit int) ([]model.Diagnostic, error)
}

// DiagnosticsHandler handles diagnostic history requests.
type DiagnosticsHandler struct {
	deps     DiagnosticsDependencies
	maxLimit int
}

// NewDiagnosticsHandler creates a new diagnostics handler.
func NewDiagnosticsHandler(deps DiagnosticsDependencies, maxLimit int) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetDiagnostics handles GET /sessions/{id}/diagnostics?limit=N
// requests. Records come back newest first.
func (h *DiagnosticsHandler) HandleGetDiagnostics(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.get_diagnostics"

	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := defaultDiagLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	diags, err := h.deps.Diagnostics(r.Context(), sessionID, limit)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if diags == nil {
		diags = []model.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, diags)
}
