package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/pkg/metrics"
)

// MetricSource computes one windowed metric for one target entity. It
// returns the value and the number of samples behind it so the engine can
// refuse to act on thin evidence.
type MetricSource interface {
	Compute(ctx context.Context, metric Metric, entityID string, w graph.Window) (value float64, samples int, err error)
}

// GraphMetricSource derives metrics from the episode timeline of the
// target entity.
type GraphMetricSource struct {
	store graph.Store
}

// NewGraphMetricSource creates a metric source over the graph store.
func NewGraphMetricSource(store graph.Store) *GraphMetricSource {
	return &GraphMetricSource{store: store}
}

// Compute implements MetricSource.
func (g *GraphMetricSource) Compute(ctx context.Context, metric Metric, entityID string, w graph.Window) (float64, int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordMetricComputeTime(float64(time.Since(start).Milliseconds()))
	}()

	episodes, err := g.store.EpisodesInWindow(ctx, entityID, w)
	if err != nil {
		return 0, 0, fmt.Errorf("episodes for %s: %w", entityID, err)
	}

	counts := make(map[event.Type]int)
	var viewabilitySum, bidSum float64
	var completed int
	for _, ep := range episodes {
		counts[ep.Type]++
		switch ep.Type {
		case event.TypeViewability:
			viewabilitySum += ep.Payload.ViewabilityScore
		case event.TypeBidRequest:
			bidSum += ep.Payload.BidPriceCPM
		case event.TypeCompletion:
			if ep.Payload.Completed {
				completed++
			}
		}
	}

	ratio := func(num, den int) float64 {
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	}

	switch metric {
	case MetricAvgViewability:
		n := counts[event.TypeViewability]
		if n == 0 {
			return 0, 0, nil
		}
		return viewabilitySum / float64(n), n, nil
	case MetricCompletionRate:
		n := counts[event.TypeCompletion]
		return ratio(completed, n), n, nil
	case MetricCTR:
		n := counts[event.TypeImpression]
		return ratio(counts[event.TypeClick], n), n, nil
	case MetricConversionRate:
		n := counts[event.TypeImpression]
		return ratio(counts[event.TypeConversion], n), n, nil
	case MetricAvgBidPrice:
		n := counts[event.TypeBidRequest]
		if n == 0 {
			return 0, 0, nil
		}
		return bidSum / float64(n), n, nil
	case MetricFrequency:
		n := counts[event.TypeImpression]
		return float64(n), n, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}
