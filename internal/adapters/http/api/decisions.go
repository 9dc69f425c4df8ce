// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/rules"
)

// DecisionDependencies defines the interface for decision history reads.
type DecisionDependencies interface {
	Decisions(entityID string, w graph.Window) []rules.Decision
}

// DecisionsHandler handles decision history requests.
type DecisionsHandler struct {
	deps DecisionDependencies
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps DecisionDependencies) *DecisionsHandler {
	return &DecisionsHandler{deps: deps}
}

// HandleGetDecisions handles GET /decisions requests. Optional query
// parameters: entity_id, from, to (RFC3339). Newest first.
func (h *DecisionsHandler) HandleGetDecisions(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_decisions"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	decisions := h.deps.Decisions(r.URL.Query().Get("entity_id"), window)
	if decisions == nil {
		decisions = []rules.Decision{}
	}
	writeJSON(w, http.StatusOK, decisions)
}
