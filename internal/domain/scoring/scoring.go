// Package scoring defines the contract for probabilistic entity match
// confidence, modelled as a call to an external ML scoring service.
package scoring

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Default scoring configuration constants.
const (
	defaultSignalWeight = 1.0
	defaultMinLatency   = 5 * time.Millisecond
	defaultMaxLatency   = 20 * time.Millisecond
	defaultRandomSeed   = 42
	maxConfidence       = 1.0
)

// Option applies a configuration option to the InMemoryScorer.
type Option func(*InMemoryScorer)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *InMemoryScorer) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSignalWeights sets per-signal weights from a configuration map.
func WithSignalWeights(weights map[string]float64, defaultWeight float64) Option {
	return func(s *InMemoryScorer) {
		// Copy the weights map to avoid external modifications
		s.signalWeights = make(map[string]float64)
		for signal, weight := range weights {
			if weight > 0 {
				s.signalWeights[signal] = weight
			}
		}
		if defaultWeight > 0 {
			s.defaultWeight = defaultWeight
		}
	}
}

// Input abstracts the match signals needed to score one candidate entity.
// Signals are normalized similarity features in [0, 1], keyed by name
// (e.g. "ip_match", "ua_match", "household_overlap").
type Input struct {
	CandidateKey string
	Kind         string
	Signals      map[string]float64
}

// Result contains the computed match confidence for a candidate.
type Result struct {
	CandidateKey string
	Confidence   float64
}

// Scorer computes a match confidence from ambiguous identity signals.
// The implementation may simulate latency to model an external ML service.
type Scorer interface {
	// Score computes a confidence in [0, 1], honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// InMemoryScorer implements Scorer with a weighted signal average and
// simulated service latency.
type InMemoryScorer struct {
	signalWeights map[string]float64
	defaultWeight float64
	// Simulated latency range
	minLatency time.Duration
	maxLatency time.Duration
	// Random seed for deterministic latency
	rng *rand.Rand
}

// NewInMemoryScorer creates a new in-memory scorer with configuration options.
func NewInMemoryScorer(opts ...Option) *InMemoryScorer {
	s := &InMemoryScorer{
		signalWeights: make(map[string]float64),
		defaultWeight: defaultSignalWeight,
		minLatency:    defaultMinLatency,
		maxLatency:    defaultMaxLatency,
		rng:           rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Score computes a match confidence for the given candidate.
func (s *InMemoryScorer) Score(ctx context.Context, in Input) (Result, error) {
	// Simulate ML service latency
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
	}

	if len(in.Signals) == 0 {
		return Result{CandidateKey: in.CandidateKey, Confidence: 0}, nil
	}

	var weighted, total float64
	for signal, value := range in.Signals {
		weight, ok := s.signalWeights[signal]
		if !ok {
			weight = s.defaultWeight
		}
		weighted += value * weight
		total += weight
	}

	confidence := weighted / total
	confidence = math.Max(0, math.Min(maxConfidence, confidence))

	return Result{
		CandidateKey: in.CandidateKey,
		Confidence:   confidence,
	}, nil
}

// SetSignalWeight allows customization of signal-specific weighting.
func (s *InMemoryScorer) SetSignalWeight(signal string, weight float64) {
	s.signalWeights[signal] = weight
}
