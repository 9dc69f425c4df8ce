package testevents

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"
)

// serviceStats mirrors the fields of GET /stats this tool relies on.
type serviceStats struct {
	Episodes    int64 `json:"episodes"`
	Entities    int64 `json:"entities"`
	Facts       int64 `json:"facts"`
	ClosedFacts int64 `json:"closed_facts"`
	QueueLength int   `json:"queue_length"`
}

// snapshotEntity is the subset of a snapshot entity this tool inspects.
type snapshotEntity struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// snapshotResponse mirrors the GET /snapshot response shape.
type snapshotResponse struct {
	AsOf     string           `json:"as_of"`
	Axis     string           `json:"axis"`
	Entities []snapshotEntity `json:"entities"`
}

// timelineItem is one entry of an entity timeline.
type timelineItem struct {
	OccurredAt string `json:"occurred_at"`
}

// timelineResponse mirrors the GET /entities/{id}/timeline response shape.
type timelineResponse struct {
	EntityID string         `json:"entity_id"`
	Items    []timelineItem `json:"items"`
}

// fetchStats retrieves the service counters from GET /stats.
func fetchStats(ctx context.Context, client *HTTPClient, baseURL string) (serviceStats, error) {
	resp, err := client.Get(ctx, baseURL+"/stats")
	if err != nil {
		return serviceStats{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return serviceStats{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return serviceStats{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var stats serviceStats
	if err := unmarshalJSON(body, &stats); err != nil {
		return serviceStats{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return stats, nil
}

// awaitIngestion polls /stats until the episode counter reaches the number
// of accepted events or the deadline expires. Ingestion is asynchronous;
// acceptance only means the event reached the queue.
func awaitIngestion(ctx context.Context, config *Config, stats *Stats) error {
	log.Printf("waiting for %d accepted events to be ingested", stats.EventsAccepted)

	client := newHTTPClient(config.Timeout)
	deadline := time.Now().Add(ProcessingDeadline)

	for {
		current, err := fetchStats(ctx, client, config.BaseURL)
		if err == nil {
			stats.EpisodesIngested = current.Episodes
			if current.Episodes >= int64(stats.EventsAccepted) && current.QueueLength == 0 {
				log.Printf("ingestion complete: %d episodes, %d entities, %d facts",
					current.Episodes, current.Entities, current.Facts)
				return nil
			}
			if config.Verbose {
				log.Printf("ingestion progress: %d/%d episodes (queue: %d)",
					current.Episodes, stats.EventsAccepted, current.QueueLength)
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("ingestion incomplete after %s: %d/%d episodes",
				ProcessingDeadline, stats.EpisodesIngested, stats.EventsAccepted)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for ingestion: %w", ctx.Err())
		case <-time.After(ProcessingPollInterval):
		}
	}
}

// fetchSnapshot retrieves the current business-time snapshot of the graph.
func fetchSnapshot(ctx context.Context, config *Config, stats *Stats) (*snapshotResponse, error) {
	log.Println("fetching graph snapshot")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/snapshot?axis=business")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var snapshot snapshotResponse
	if err := unmarshalJSON(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	stats.SnapshotEntities = len(snapshot.Entities)
	log.Printf("snapshot holds %d entities", len(snapshot.Entities))
	return &snapshot, nil
}

// fetchTimelines retrieves windowed timelines for a sample of snapshot
// entities and verifies each one responds.
func fetchTimelines(ctx context.Context, config *Config, snapshot *snapshotResponse, stats *Stats) error {
	sample := len(snapshot.Entities)
	if sample > TimelineSampleSize {
		sample = TimelineSampleSize
	}
	if sample == 0 {
		return fmt.Errorf("no entities to sample timelines from")
	}

	log.Printf("fetching timelines for %d sample entities", sample)

	client := newHTTPClient(config.Timeout)
	from := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	retrieved := 0
	for i := 0; i < sample; i++ {
		entity := snapshot.Entities[i]
		timelineURL := fmt.Sprintf("%s/entities/%s/timeline?from=%s&to=%s",
			config.BaseURL, url.PathEscape(entity.ID), url.QueryEscape(from), url.QueryEscape(to))

		resp, err := client.Get(ctx, timelineURL)
		if err != nil {
			log.Printf("timeline request for %s failed: %v", entity.ID, err)
			continue
		}
		body, err := readResponseBody(resp)
		if err != nil || resp.StatusCode != StatusOK {
			log.Printf("timeline for %s returned HTTP %d", entity.ID, resp.StatusCode)
			continue
		}

		var timeline timelineResponse
		if err := unmarshalJSON(body, &timeline); err != nil {
			log.Printf("failed to parse timeline for %s: %v", entity.ID, err)
			continue
		}

		retrieved++
		if config.Verbose {
			log.Printf("timeline %s (%s): %d items", entity.ID, entity.Kind, len(timeline.Items))
		}
	}

	stats.TimelinesRetrieved = retrieved
	if retrieved == 0 {
		return fmt.Errorf("no timelines retrieved from %d samples", sample)
	}

	log.Printf("retrieved %d/%d sample timelines", retrieved, sample)
	return nil
}
