// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/rules"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Publish pushes a raw event onto its transport topic. Returns false
	// on backpressure.
	Publish(ctx context.Context, topic, key string, value []byte) bool

	// Read operations expose the temporal graph.
	Snapshot(ctx context.Context, asOf time.Time, axis graph.TimeAxis) (graph.Snapshot, error)
	Timeline(ctx context.Context, entityID string, w graph.Window) (*graph.Timeline, error)
	Communities() []graph.Community

	// Rule administration and decision history.
	UpsertRule(r rules.Rule) error
	RemoveRule(id string) error
	Rules() []rules.Rule
	Decisions(entityID string, w graph.Window) []rules.Decision
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	rulesHandler       *RulesHandler
	decisionsHandler   *DecisionsHandler
	snapshotHandler    *SnapshotHandler
	timelineHandler    *TimelineHandler
	communitiesHandler *CommunitiesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		rulesHandler:       NewRulesHandler(deps),
		decisionsHandler:   NewDecisionsHandler(deps),
		snapshotHandler:    NewSnapshotHandler(deps),
		timelineHandler:    NewTimelineHandler(deps),
		communitiesHandler: NewCommunitiesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/rules", MetricsMiddleware(s.rulesHandler.HandleListRules, "rules"))
	mux.HandleFunc("/rules/", MetricsMiddleware(s.rulesHandler.HandleRule, "rules"))
	mux.HandleFunc("/decisions", MetricsMiddleware(s.decisionsHandler.HandleGetDecisions, "decisions"))
	mux.HandleFunc("/snapshot", MetricsMiddleware(s.snapshotHandler.HandleGetSnapshot, "snapshot"))
	mux.HandleFunc("/entities/", MetricsMiddleware(s.timelineHandler.HandleGetTimeline, "timeline"))
	mux.HandleFunc("/communities", MetricsMiddleware(s.communitiesHandler.HandleGetCommunities, "communities"))
}

type ackResponse struct {
	Status    string `json:"status"`
	EpisodeID string `json:"episode_id"`
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

// parseWindow reads optional from/to query parameters as RFC3339.
func parseWindow(r *http.Request) (graph.Window, error) {
	var w graph.Window
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return w, WrapKind("parse_window", ErrBadRequest, err)
		}
		w.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return w, WrapKind("parse_window", ErrBadRequest, err)
		}
		w.To = t
	}
	return w, nil
}
