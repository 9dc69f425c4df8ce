// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/adkite/tempograph/internal/domain/graph"
)

// SnapshotDependencies defines the interface for point-in-time reads.
type SnapshotDependencies interface {
	Snapshot(ctx context.Context, asOf time.Time, axis graph.TimeAxis) (graph.Snapshot, error)
}

// SnapshotHandler handles point-in-time graph requests.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleGetSnapshot handles GET /snapshot requests. Query parameters:
// as_of (RFC3339, default now) and axis (business|system, default
// business).
func (h *SnapshotHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		asOf = t
	}

	axis := graph.AxisBusinessTime
	if raw := r.URL.Query().Get("axis"); raw != "" {
		axis = graph.TimeAxis(raw)
		if !axis.Valid() {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}

	snapshot, err := h.deps.Snapshot(r.Context(), asOf, axis)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
