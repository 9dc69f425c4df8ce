// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/rules"
)

// RuleDependencies defines the interface for rule administration.
type RuleDependencies interface {
	UpsertRule(r rules.Rule) error
	RemoveRule(id string) error
	Rules() []rules.Rule
}

// ruleRequest mirrors the admin schema for PUT /rules/{id}. The window is
// a duration string so operators write "24h", not nanosecond counts.
type ruleRequest struct {
	Condition           rules.Condition `json:"condition"`
	Action              rules.Action    `json:"action"`
	ActionParams        map[string]any  `json:"action_params,omitempty"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	Window              string          `json:"window"`
	TargetKind          graph.Kind      `json:"target_kind"`
	Enabled             bool            `json:"enabled"`
}

// RulesHandler handles rule administration requests.
type RulesHandler struct {
	deps RuleDependencies
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(deps RuleDependencies) *RulesHandler {
	return &RulesHandler{deps: deps}
}

// HandleListRules handles GET /rules requests.
func (h *RulesHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Rules())
}

// HandleRule handles PUT and DELETE /rules/{id} requests. Changes take
// effect at the next evaluation tick.
func (h *RulesHandler) HandleRule(w http.ResponseWriter, r *http.Request) {
	const op = "api.rule_admin"

	id := strings.TrimPrefix(r.URL.Path, "/rules/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req ruleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		window, err := time.ParseDuration(req.Window)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		rule := rules.Rule{
			ID:                  id,
			Condition:           req.Condition,
			Action:              req.Action,
			ActionParams:        req.ActionParams,
			ConfidenceThreshold: req.ConfidenceThreshold,
			Window:              window,
			TargetKind:          req.TargetKind,
			Enabled:             req.Enabled,
		}
		if err := h.deps.UpsertRule(rule); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeJSON(w, http.StatusOK, rule)

	case http.MethodDelete:
		if err := h.deps.RemoveRule(id); err != nil {
			if errors.Is(err, rules.ErrRuleNotFound) {
				writeError(w, http.StatusNotFound, "not_found", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "rule_id": id})

	default:
		http.NotFound(w, r)
	}
}
