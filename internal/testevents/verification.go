package testevents

import (
	"context"
	"fmt"
	"log"
)

// verifyResults cross-checks the graph against the submitted event stream.
func verifyResults(ctx context.Context, config *Config, events []Event, snapshot *snapshotResponse, stats *Stats) error {
	log.Println("verifying results")

	if snapshot == nil || len(snapshot.Entities) == 0 {
		return fmt.Errorf("snapshot is empty after ingestion")
	}

	expected := expectedEntities(events)
	byID := make(map[string]string, len(snapshot.Entities))
	kinds := make(map[string]int)
	for _, entity := range snapshot.Entities {
		byID[entity.ID] = entity.Kind
		kinds[entity.Kind]++
	}

	missing := 0
	for id := range expected {
		if _, ok := byID[id]; !ok {
			missing++
			if config.Verbose {
				log.Printf("entity %s referenced by events but absent from snapshot", id)
			}
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d referenced entities missing from snapshot", missing, len(expected))
	}
	log.Printf("all %d referenced entities present in snapshot", len(expected))

	for _, kind := range []string{"campaign", "creative", "device"} {
		if kinds[kind] == 0 {
			return fmt.Errorf("snapshot holds no %s entities", kind)
		}
	}
	displayKindBreakdown(kinds)

	if stats.EpisodesIngested < int64(stats.EventsAccepted) {
		return fmt.Errorf("episode count %d below accepted event count %d",
			stats.EpisodesIngested, stats.EventsAccepted)
	}

	log.Println("result verification completed")
	return nil
}

// expectedEntities collects every entity identifier referenced by the
// generated event stream.
func expectedEntities(events []Event) map[string]struct{} {
	expected := make(map[string]struct{})
	add := func(id string) {
		if id != "" {
			expected[id] = struct{}{}
		}
	}
	for _, event := range events {
		add(event.Payload.DeviceID)
		add(event.Payload.CampaignID)
		add(event.Payload.CreativeID)
		add(event.Payload.ContentID)
		add(event.Payload.PlacementID)
	}
	return expected
}

// displayKindBreakdown logs the entity population per kind.
func displayKindBreakdown(kinds map[string]int) {
	for _, kind := range []string{"campaign", "creative", "device", "content", "placement", "audience_segment"} {
		if count := kinds[kind]; count > 0 {
			log.Printf("   %s: %d", kind, count)
		}
	}
}
