// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	RewardDependencies
	StateDependencies
	DiagnosticsDependencies
}

// SessionView mirrors the read shape returned by session queries.
type SessionView = types.SessionView

// StateView mirrors the read shape returned by state queries.
type StateView = types.StateView

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	rewardsHandler     *RewardsHandler
	stateHandler       *StateHandler
	diagnosticsHandler *DiagnosticsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxDiagLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		sessionsHandler:    NewSessionsHandler(deps),
		rewardsHandler:     NewRewardsHandler(deps),
		stateHandler:       NewStateHandler(deps),
		diagnosticsHandler: NewDiagnosticsHandler(deps, maxDiagLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleSessions, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.handleSessionSubtree, "session"))
}

// handleSessionSubtree routes /sessions/{id} and /sessions/{id}/{action}.
func (s *Server) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	sessionID, action, ok := splitSessionPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method == http.MethodDelete {
			s.sessionsHandler.HandleDeleteSession(w, r, sessionID)
			return
		}
		http.NotFound(w, r)
	case "rewards":
		s.rewardsHandler.HandleComputeReward(w, r, sessionID)
	case "state":
		s.stateHandler.HandleGetState(w, r, sessionID)
	case "diagnostics":
		s.diagnosticsHandler.HandleGetDiagnostics(w, r, sessionID)
	case "reset":
		s.sessionsHandler.HandleResetSession(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

// splitSessionPath extracts the session id and optional action from a
// /sessions/{id}[/{action}] path.
func splitSessionPath(path string) (sessionID, action string, ok bool) {
	rest := strings.TrimPrefix(path, "/sessions/")
	if rest == "" || rest == path {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	sessionID = parts[0]
	if sessionID == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return sessionID, action, true
}

// createSessionRequest mirrors the JSON schema for POST /sessions. The id
// is optional; an absent id asks the service to generate one.
type createSessionRequest struct {
	ID string `json:"id"`
}

// rewardRequest mirrors the JSON schema for POST /sessions/{id}/rewards.
type rewardRequest struct {
	BatchID string              `json:"batch_id"`
	Records []model.EventRecord `json:"records"`
}

// rewardResponse acknowledges a reward computation. Reward is omitted on
// duplicate acknowledgements because the original value was not recomputed.
type rewardResponse struct {
	Status    string              `json:"status"`
	Duplicate bool                `json:"duplicate"`
	Reward    *model.ScalarReward `json:"reward,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound allows the API to translate upstream not-found errors to 404.
// This stays generic to avoid tight coupling with specific packages.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// isConflict mirrors isNotFound for already-exists conditions.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// decodeJSON decodes a request body, tolerating an empty body when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
