// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/adkite/tempograph/internal/domain/graph"
)

// TimelineDependencies defines the interface for entity timeline reads.
type TimelineDependencies interface {
	Timeline(ctx context.Context, entityID string, w graph.Window) (*graph.Timeline, error)
}

// TimelineHandler handles entity timeline requests.
type TimelineHandler struct {
	deps TimelineDependencies
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(deps TimelineDependencies) *TimelineHandler {
	return &TimelineHandler{deps: deps}
}

// timelineResponse materializes the lazy timeline for the wire.
type timelineResponse struct {
	EntityID string               `json:"entity_id"`
	Window   graph.Window         `json:"window"`
	Items    []graph.TimelineItem `json:"items"`
}

// HandleGetTimeline handles GET /entities/{id}/timeline requests. The
// window is required: unbounded history reads are rejected.
func (h *TimelineHandler) HandleGetTimeline(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_timeline"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/entities/")
	entityID, suffix, ok := strings.Cut(path, "/")
	if !ok || suffix != "timeline" || entityID == "" {
		http.NotFound(w, r)
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	timeline, err := h.deps.Timeline(r.Context(), entityID, window)
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrUnboundedQuery):
			writeError(w, http.StatusBadRequest, "bad_request", err)
		case errors.Is(err, graph.ErrEntityNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}

	items := make([]graph.TimelineItem, 0, timeline.Len())
	for {
		item, ok := timeline.Next()
		if !ok {
			break
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		EntityID: entityID,
		Window:   window,
		Items:    items,
	})
}
