// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adkite/tempograph/internal/domain/event"
)

// EventDependencies defines the interface for event submission.
type EventDependencies interface {
	Publish(ctx context.Context, topic, key string, value []byte) bool
}

// eventRequest mirrors the transport schema for POST /events.
type eventRequest struct {
	EpisodeID  string        `json:"episode_id"`
	EventType  string        `json:"event_type"`
	OccurredAt string        `json:"occurred_at"`
	Payload    event.Payload `json:"payload"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.EpisodeID) == "":
		return errors.New("missing episode_id")
	case strings.TrimSpace(e.EventType) == "":
		return errors.New("missing event_type")
	case strings.TrimSpace(e.OccurredAt) == "":
		return errors.New("missing occurred_at")
	}
	if !event.Type(e.EventType).Valid() {
		return errors.New("unknown event_type")
	}
	if _, err := time.Parse(time.RFC3339, e.OccurredAt); err != nil {
		return errors.New("invalid occurred_at; must be RFC3339")
	}
	return nil
}

// partitionKey picks the identifier that keeps related events on one
// partition: the device when present, otherwise the campaign.
func (e eventRequest) partitionKey() string {
	if e.Payload.DeviceID != "" {
		return e.Payload.DeviceID
	}
	if e.Payload.CampaignID != "" {
		return e.Payload.CampaignID
	}
	return e.EpisodeID
}

// EventsHandler handles event submission requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests. Events are acknowledged
// and ingested asynchronously; duplicate episode IDs are dropped by the
// pipeline, not here.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	body := json.RawMessage{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	topic, ok := event.TopicForType(event.Type(req.EventType))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	if ok := h.deps.Publish(r.Context(), topic, req.partitionKey(), body); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EpisodeID: req.EpisodeID})
}
