// Package event contains the canonical episode model and the temporal
// event normalizer that produces it from raw transport messages.
package event

import "time"

// Type enumerates the CTV event kinds accepted from transport.
type Type string

// Event types, one per consumed topic.
const (
	TypeBidRequest  Type = "bid_request"
	TypeImpression  Type = "impression"
	TypeViewability Type = "viewability"
	TypeCompletion  Type = "completion"
	TypeClick       Type = "click"
	TypeConversion  Type = "conversion"
)

// Transport topics consumed by the ingestion pipeline.
const (
	TopicBidRequests = "ctv_bid_requests"
	TopicImpressions = "ctv_impressions"
	TopicViewability = "ctv_viewability"
	TopicCompletions = "ctv_completions"
	TopicClicks      = "ctv_clicks"
	TopicConversions = "ctv_conversions"
)

// topicTypes maps transport topics to the event type they carry.
var topicTypes = map[string]Type{
	TopicBidRequests: TypeBidRequest,
	TopicImpressions: TypeImpression,
	TopicViewability: TypeViewability,
	TopicCompletions: TypeCompletion,
	TopicClicks:      TypeClick,
	TopicConversions: TypeConversion,
}

// TypeForTopic returns the event type carried by a transport topic.
func TypeForTopic(topic string) (Type, bool) {
	t, ok := topicTypes[topic]
	return t, ok
}

// TopicForType returns the transport topic that carries the event type.
func TopicForType(t Type) (string, bool) {
	for topic, typ := range topicTypes {
		if typ == t {
			return topic, true
		}
	}
	return "", false
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeBidRequest, TypeImpression, TypeViewability, TypeCompletion, TypeClick, TypeConversion:
		return true
	}
	return false
}

// Payload carries the typed per-event fields. Identifier fields are the
// deterministic entity resolution keys; Extra holds forward-compatible
// attributes that do not warrant a schema change.
type Payload struct {
	DeviceID    string `json:"device_id,omitempty"`
	CampaignID  string `json:"campaign_id,omitempty"`
	CreativeID  string `json:"creative_id,omitempty"`
	ContentID   string `json:"content_id,omitempty"`
	PlacementID string `json:"placement_id,omitempty"`

	BidPriceCPM      float64 `json:"bid_price_cpm,omitempty"`
	ViewabilityScore float64 `json:"viewability_score,omitempty"`
	WatchSeconds     float64 `json:"watch_seconds,omitempty"`
	Completed        bool    `json:"completed,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Episode is the immutable record of one raw event. Episodes are never
// mutated or deleted; they form the ground-truth ingestion timeline.
// Replay order is established by (RecordedAt, Partition, Offset) while
// OccurredAt governs all business-time windowing.
type Episode struct {
	ID         string    `json:"episode_id"`
	Type       Type      `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"`
	Payload    Payload   `json:"payload"`
	Partition  int       `json:"partition"`
	Offset     int64     `json:"offset"`
}
