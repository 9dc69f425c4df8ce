package testevents

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/adkite/tempograph/pkg/logger"
	"github.com/google/uuid"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
)

// Constants for session funnel probabilities.
const (
	viewabilityProbability = 0.80
	completionProbability  = 0.55
	clickProbability       = 0.08
	conversionProbability  = 0.25 // conditional on a click
)

// Constants for measurement value ranges.
const (
	bidPriceMinCPM     = 4.0
	bidPriceRangeCPM   = 28.0
	viewabilityMin     = 0.15
	viewabilityRange   = 0.85
	watchSecondsMin    = 2.0
	watchSecondsRange  = 28.0
	sessionStepSeconds = 5
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// pickIndex returns a random index in [0, n).
func pickIndex(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateEvents simulates ad sessions and flattens them into a single
// event stream. Each session walks the delivery funnel: a bid request,
// an impression, and then viewability, completion, click and conversion
// events with falling probability.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating ad sessions",
		logger.Int("sessions", config.Sessions),
		logger.Int("campaigns", config.Campaigns),
		logger.Int("creatives", config.Creatives),
		logger.Int("devices", config.Devices))

	campaigns := makePool("camp", config.Campaigns)
	creatives := makePool("crt", config.Creatives)
	devices := makePool("dev", config.Devices)
	placements := makePool("plc", config.Campaigns)
	contents := makePool("cnt", config.Creatives)

	events := make([]Event, 0, config.Sessions*3)
	base := time.Now().UTC().Add(-time.Duration(config.Sessions) * time.Second)

	for i := 0; i < config.Sessions; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during session generation: %w", ctx.Err())
		default:
		}

		session := generateSession(
			base.Add(time.Duration(i)*time.Second),
			campaigns[pickIndex(len(campaigns))],
			creatives[pickIndex(len(creatives))],
			devices[pickIndex(len(devices))],
			placements[pickIndex(len(placements))],
			contents[pickIndex(len(contents))])
		events = append(events, session...)
	}

	stats.SessionsGenerated = config.Sessions
	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events",
		logger.Int("sessions", config.Sessions),
		logger.Int("events", len(events)))

	return events, nil
}

// generateSession produces the ordered event funnel for one ad session.
func generateSession(start time.Time, campaignID, creativeID, deviceID, placementID, contentID string) []Event {
	at := func(step int) string {
		return start.Add(time.Duration(step*sessionStepSeconds) * time.Second).Format(time.RFC3339)
	}

	events := []Event{
		{
			EpisodeID:  uuid.NewString(),
			EventType:  "bid_request",
			OccurredAt: at(0),
			Payload: Payload{
				DeviceID:    deviceID,
				PlacementID: placementID,
				ContentID:   contentID,
				BidPriceCPM: bidPriceMinCPM + getRandomFloat()*bidPriceRangeCPM,
			},
		},
		{
			EpisodeID:  uuid.NewString(),
			EventType:  "impression",
			OccurredAt: at(1),
			Payload: Payload{
				DeviceID:    deviceID,
				CampaignID:  campaignID,
				CreativeID:  creativeID,
				PlacementID: placementID,
				ContentID:   contentID,
			},
		},
	}

	if getRandomFloat() < viewabilityProbability {
		events = append(events, Event{
			EpisodeID:  uuid.NewString(),
			EventType:  "viewability",
			OccurredAt: at(2),
			Payload: Payload{
				DeviceID:         deviceID,
				CampaignID:       campaignID,
				CreativeID:       creativeID,
				ViewabilityScore: viewabilityMin + getRandomFloat()*viewabilityRange,
			},
		})
	}

	if getRandomFloat() < completionProbability {
		events = append(events, Event{
			EpisodeID:  uuid.NewString(),
			EventType:  "completion",
			OccurredAt: at(3),
			Payload: Payload{
				DeviceID:     deviceID,
				CampaignID:   campaignID,
				CreativeID:   creativeID,
				WatchSeconds: watchSecondsMin + getRandomFloat()*watchSecondsRange,
				Completed:    true,
			},
		})
	}

	if getRandomFloat() < clickProbability {
		events = append(events, Event{
			EpisodeID:  uuid.NewString(),
			EventType:  "click",
			OccurredAt: at(4),
			Payload: Payload{
				DeviceID:   deviceID,
				CampaignID: campaignID,
				CreativeID: creativeID,
			},
		})

		if getRandomFloat() < conversionProbability {
			events = append(events, Event{
				EpisodeID:  uuid.NewString(),
				EventType:  "conversion",
				OccurredAt: at(5),
				Payload: Payload{
					DeviceID:   deviceID,
					CampaignID: campaignID,
				},
			})
		}
	}

	return events
}

// makePool generates a pool of stable identifiers with the given prefix.
func makePool(prefix string, size int) []string {
	if size < 1 {
		size = 1
	}
	ids := make([]string, size)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s_%04d", prefix, i+1)
	}
	return ids
}
