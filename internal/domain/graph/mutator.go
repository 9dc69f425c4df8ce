package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adkite/tempograph/pkg/logger"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Default mutation retry configuration.
const (
	defaultMaxRetries  = 5
	defaultBackoffBase = 10 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// MutatorOption applies a configuration option to the Mutator.
type MutatorOption func(*Mutator)

// WithMaxRetries sets how many times a conflicted batch is retried.
func WithMaxRetries(n int) MutatorOption {
	return func(m *Mutator) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithBackoffBase sets the base delay for conflict retry backoff.
func WithBackoffBase(d time.Duration) MutatorOption {
	return func(m *Mutator) {
		if d > 0 {
			m.backoffBase = d
		}
	}
}

// Mutator is the single write path into the graph. It validates batches,
// delegates the bi-temporal merge to the store, and absorbs optimistic
// write conflicts with bounded exponential backoff.
type Mutator struct {
	store       Store
	maxRetries  int
	backoffBase time.Duration
	log         logger.Logger
}

// NewMutator creates a mutator over the given store.
func NewMutator(store Store, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		store:       store,
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		log:         logger.Named("graph.mutator"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply applies one batch atomically, retrying write conflicts. Any other
// error is returned to the caller unchanged so ingestion can decide whether
// to redeliver.
func (m *Mutator) Apply(ctx context.Context, batch Batch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		metrics.RecordGraphApplyLatency(float64(time.Since(start).Milliseconds()))
	}()

	backoff := m.backoffBase
	for attempt := 0; ; attempt++ {
		err := m.store.ApplyBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrWriteConflict) {
			return err
		}

		metrics.RecordGraphWriteConflict()
		if attempt >= m.maxRetries {
			return fmt.Errorf("batch for episode %s: retries exhausted: %w", batch.Episode.ID, err)
		}

		m.log.Debug(ctx, "write conflict, retrying",
			logger.String("episode_id", batch.Episode.ID),
			logger.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return fmt.Errorf("apply cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// ReplaceMembership asserts that each member belongs to the community as of
// the given business time. The exclusive intent closes any open membership
// in a different community, so history is preserved as closed intervals.
func (m *Mutator) ReplaceMembership(ctx context.Context, communityID string, members []string, at time.Time) error {
	if communityID == "" {
		return fmt.Errorf("%w: empty community id", ErrInvalidBatch)
	}

	batch := Batch{}
	for _, member := range members {
		batch.Facts = append(batch.Facts, FactIntent{
			Subject:   member,
			Relation:  RelationBelongsTo,
			Object:    communityID,
			ValidFrom: at,
			Exclusive: true,
		})
	}
	return m.Apply(ctx, batch)
}

// validateBatch rejects batches the store could only apply partially.
func validateBatch(batch Batch) error {
	if len(batch.Entities) == 0 && len(batch.Facts) == 0 {
		return fmt.Errorf("%w: no intents", ErrInvalidBatch)
	}
	for _, e := range batch.Entities {
		if e.ID == "" {
			return fmt.Errorf("%w: entity intent with empty id", ErrInvalidBatch)
		}
		if e.Kind == "" {
			return fmt.Errorf("%w: entity %s has no kind", ErrInvalidBatch, e.ID)
		}
	}
	for _, f := range batch.Facts {
		if f.Subject == "" || f.Object == "" {
			return fmt.Errorf("%w: fact intent with empty endpoint", ErrInvalidBatch)
		}
		switch f.Relation {
		case RelationInvolves, RelationTargets, RelationDisplays, RelationViewedOn, RelationBelongsTo:
		default:
			return fmt.Errorf("%w: unknown relation %q", ErrInvalidBatch, f.Relation)
		}
		// Batches without an episode carry no default business time, so
		// each intent must bring its own.
		if batch.Episode.ID == "" && f.ValidFrom.IsZero() {
			return fmt.Errorf("%w: fact intent without valid_from", ErrInvalidBatch)
		}
	}
	return nil
}
