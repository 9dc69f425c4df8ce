package graph

import (
	"context"
	"time"

	"github.com/adkite/tempograph/internal/domain/event"
)

// TimeAxis selects which temporal dimension a point-in-time read uses.
type TimeAxis string

const (
	// AxisSystemTime answers "what did the system know at T":
	// facts with RecordedAt <= T, regardless of business validity.
	AxisSystemTime TimeAxis = "system"
	// AxisBusinessTime answers "what was true in the world at T":
	// facts with ValidFrom <= T < ValidTo.
	AxisBusinessTime TimeAxis = "business"
)

// Valid reports whether the axis is a known dimension.
func (a TimeAxis) Valid() bool {
	return a == AxisSystemTime || a == AxisBusinessTime
}

// Window is a half-open business-time interval [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Bounded reports whether both ends of the window are set.
func (w Window) Bounded() bool {
	return !w.From.IsZero() && !w.To.IsZero() && w.To.After(w.From)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// StoreStats summarizes store contents for metrics and the stats endpoint.
type StoreStats struct {
	Entities    int64 `json:"entities"`
	Facts       int64 `json:"facts"`
	ClosedFacts int64 `json:"closed_facts"`
	Episodes    int64 `json:"episodes"`
}

// Store is the durable graph boundary. Implementations provide the
// bi-temporal merge semantics (LWW attributes, close-and-insert facts,
// per-entity optimistic versioning) so that the in-memory store and the
// Bolt-backed store behave identically.
type Store interface {
	// ApplyBatch applies one episode's entities and facts atomically and
	// appends the episode to the timeline. Returns ErrWriteConflict when a
	// concurrent mutation raced on one of the batch's entities.
	ApplyBatch(ctx context.Context, batch Batch) error

	// GetEntity returns a read-only copy, or ErrEntityNotFound.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// Entities lists read-only entity copies, filtered by kind when kind
	// is non-empty.
	Entities(ctx context.Context, kind Kind) ([]*Entity, error)

	// FactsAsOf returns all facts visible at asOf along the given axis.
	FactsAsOf(ctx context.Context, asOf time.Time, axis TimeAxis) ([]Fact, error)

	// FactsOf returns facts where the entity is subject or object and the
	// validity interval overlaps the window.
	FactsOf(ctx context.Context, entityID string, w Window) ([]Fact, error)

	// FactsFrom returns every fact whose subject is the given node,
	// including closed intervals.
	FactsFrom(ctx context.Context, subject string) ([]Fact, error)

	// EpisodesInWindow returns episodes whose OccurredAt falls in the
	// window, ordered by occurred_at. An empty entityID matches all
	// episodes; otherwise only episodes involving the entity.
	EpisodesInWindow(ctx context.Context, entityID string, w Window) ([]event.Episode, error)

	// Stats reports current store sizes.
	Stats(ctx context.Context) (StoreStats, error)
}
