package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adkite/tempograph/internal/domain/dedupe"
	"github.com/adkite/tempograph/pkg/metrics"
)

// RawMessage is one transport record as delivered by the partitioned log.
type RawMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Value     []byte
}

// wireEvent mirrors the transport payload schema for all topics.
type wireEvent struct {
	EpisodeID  string  `json:"episode_id"`
	EventType  string  `json:"event_type,omitempty"`
	OccurredAt string  `json:"occurred_at"`
	Payload    Payload `json:"payload"`
}

// Normalizer validates and canonicalizes raw transport messages into
// Episodes with both temporal stamps. It has no side effects beyond the
// idempotency index; it never touches the graph store.
type Normalizer struct {
	index dedupe.Index
	now   func() time.Time
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithClock overrides the wall clock used for RecordedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNormalizer creates a normalizer backed by the given idempotency index.
func NewNormalizer(index dedupe.Index, opts ...Option) *Normalizer {
	n := &Normalizer{
		index: index,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize produces a canonical Episode from a raw transport message.
//
// Failure modes:
//   - ErrMalformedEvent: undecodable body, unknown topic/type, or missing
//     required fields for the event type
//   - ErrMissingTimestamp: occurred_at absent or unparseable
//   - ErrDuplicateEpisode: episode_id already ingested (callers log and
//     drop; the graph is untouched)
func (n *Normalizer) Normalize(ctx context.Context, msg RawMessage) (Episode, error) {
	start := time.Now()
	defer func() {
		metrics.RecordNormalizeLatency(float64(time.Since(start).Milliseconds()))
	}()

	var wire wireEvent
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		metrics.RecordEpisodeMalformed()
		return Episode{}, fmt.Errorf("%w: decode: %v", ErrMalformedEvent, err)
	}

	if strings.TrimSpace(wire.EpisodeID) == "" {
		metrics.RecordEpisodeMalformed()
		return Episode{}, fmt.Errorf("%w: missing episode_id", ErrMalformedEvent)
	}

	typ, ok := TypeForTopic(msg.Topic)
	if !ok {
		// Fall back to the embedded type for direct (non-topic) submission.
		typ = Type(wire.EventType)
	}
	if !typ.Valid() {
		metrics.RecordEpisodeMalformed()
		return Episode{}, fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, wire.EventType)
	}
	if wire.EventType != "" && Type(wire.EventType) != typ {
		metrics.RecordEpisodeMalformed()
		return Episode{}, fmt.Errorf("%w: event type %q does not match topic %q", ErrMalformedEvent, wire.EventType, msg.Topic)
	}

	if strings.TrimSpace(wire.OccurredAt) == "" {
		metrics.RecordEpisodeMalformed()
		return Episode{}, fmt.Errorf("%w: occurred_at absent", ErrMissingTimestamp)
	}
	occurredAt, err := time.Parse(time.RFC3339, wire.OccurredAt)
	if err != nil {
		metrics.RecordEpisodeMalformed()
		return Episode{}, fmt.Errorf("%w: occurred_at %q: %v", ErrMissingTimestamp, wire.OccurredAt, err)
	}

	if err := requireFields(typ, wire.Payload); err != nil {
		metrics.RecordEpisodeMalformed()
		return Episode{}, err
	}

	// Idempotency: at-least-once transport delivery means replays are
	// expected, not exceptional.
	if n.index.SeenAndRecord(ctx, wire.EpisodeID) {
		metrics.RecordEpisodeDuplicate()
		return Episode{}, fmt.Errorf("%w: %s", ErrDuplicateEpisode, wire.EpisodeID)
	}

	return Episode{
		ID:         wire.EpisodeID,
		Type:       typ,
		OccurredAt: occurredAt.UTC(),
		RecordedAt: n.now(),
		Payload:    wire.Payload,
		Partition:  msg.Partition,
		Offset:     msg.Offset,
	}, nil
}

// Unrecord releases an episode ID from the idempotency index so transport
// redelivery can retry it. Used when graph mutation fails after the ID was
// recorded (commit-after-apply).
func (n *Normalizer) Unrecord(ctx context.Context, episodeID string) {
	n.index.Unrecord(ctx, episodeID)
}

// requireFields enforces the per-type required payload identifiers.
func requireFields(typ Type, p Payload) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s requires %s", ErrMalformedEvent, typ, field)
	}
	switch typ {
	case TypeBidRequest:
		if p.DeviceID == "" && p.PlacementID == "" {
			return missing("device_id or placement_id")
		}
	case TypeImpression:
		if p.CampaignID == "" {
			return missing("campaign_id")
		}
		if p.CreativeID == "" {
			return missing("creative_id")
		}
	case TypeViewability:
		if p.CreativeID == "" {
			return missing("creative_id")
		}
		if p.ViewabilityScore < 0 || p.ViewabilityScore > 1 {
			return fmt.Errorf("%w: viewability_score %v outside [0, 1]", ErrMalformedEvent, p.ViewabilityScore)
		}
	case TypeCompletion:
		if p.CreativeID == "" {
			return missing("creative_id")
		}
	case TypeClick, TypeConversion:
		if p.CampaignID == "" {
			return missing("campaign_id")
		}
	}
	return nil
}
