package testevents

import "time"

// Config holds configuration for the event generator run
type Config struct {
	BaseURL    string        // Base URL of the service
	Sessions   int           // Number of ad sessions to simulate
	Campaigns  int           // Size of the campaign pool
	Creatives  int           // Size of the creative pool
	Devices    int           // Size of the device pool
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for generated events
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Event mirrors the transport schema accepted by POST /events
type Event struct {
	EpisodeID  string  `json:"episode_id"`
	EventType  string  `json:"event_type"`
	OccurredAt string  `json:"occurred_at"`
	Payload    Payload `json:"payload"`
}

// Payload carries the per-event identifier and measurement fields
type Payload struct {
	DeviceID         string  `json:"device_id,omitempty"`
	CampaignID       string  `json:"campaign_id,omitempty"`
	CreativeID       string  `json:"creative_id,omitempty"`
	ContentID        string  `json:"content_id,omitempty"`
	PlacementID      string  `json:"placement_id,omitempty"`
	BidPriceCPM      float64 `json:"bid_price_cpm,omitempty"`
	ViewabilityScore float64 `json:"viewability_score,omitempty"`
	WatchSeconds     float64 `json:"watch_seconds,omitempty"`
	Completed        bool    `json:"completed,omitempty"`
}

// AckResponse represents the response from event submission
type AckResponse struct {
	Status    string `json:"status"`
	EpisodeID string `json:"episode_id"`
}

// Stats holds run statistics
type Stats struct {
	SessionsGenerated  int
	EventsGenerated    int
	EventsSubmitted    int
	EventsAccepted     int
	EventsThrottled    int
	EventsFailed       int
	EpisodesIngested   int64
	SnapshotEntities   int
	TimelinesRetrieved int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
