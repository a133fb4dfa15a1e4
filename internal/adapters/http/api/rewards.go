// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/critic/internal/domain/model"
	"github.com/okian/critic/internal/domain/validate"
)

// RewardDependencies defines the interface for reward computation.
type RewardDependencies interface {
	ComputeReward(ctx context.Context, sessionID, batchID string, records []model.EventRecord) (model.ScalarReward, bool, error)
}

// RewardsHandler handles reward computation requests.
type RewardsHandler struct {
	deps RewardDependencies
}

// NewRewardsHandler creates a new rewards handler.
func NewRewardsHandler(deps RewardDependencies) *RewardsHandler {
	return &RewardsHandler{deps: deps}
}

// HandleComputeReward handles POST /sessions/{id}/rewards requests.
// An empty records array is a valid batch and yields the neutral reward.
func (h *RewardsHandler) HandleComputeReward(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.compute_reward"

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req rewardRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	reward, duplicate, err := h.deps.ComputeReward(r.Context(), sessionID, req.BatchID, req.Records)
	if err != nil {
		switch {
		case errors.Is(err, validate.ErrSchemaViolation):
			writeError(w, http.StatusBadRequest, "schema_violation", err)
		case isNotFound(err):
			writeError(w, http.StatusNotFound, "not_found", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}

	if duplicate {
		writeJSON(w, http.StatusOK, rewardResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusOK, rewardResponse{Status: "computed", Duplicate: false, Reward: &reward})
}
