// Package repository provides the in-memory graph store: sharded entity
// maps with per-entity optimistic versioning and an append-only temporal
// fact log.
package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/pkg/metrics"
)

const defaultShardCount = 8

// shard holds a partition of the entity and fact space. Facts live in the
// shard of their subject; the object index points at the same fact values.
type shard struct {
	mu             sync.RWMutex
	entities       map[string]*graph.Entity
	factsBySubject map[string][]*graph.Fact
	factsByObject  map[string][]*graph.Fact
}

// episodeLog is the append-only episode timeline with an involvement index
// so per-entity history reads stay cheap.
type episodeLog struct {
	mu       sync.RWMutex
	byID     map[string]event.Episode
	ordered  []event.Episode // sorted by OccurredAt
	byEntity map[string][]string
}

// MemStore implements graph.Store in memory.
//
// Writes are two-phase: a read phase snapshots the versions of every entity
// the batch touches, then the commit phase takes the involved shard locks
// in order and re-validates those versions. A concurrent commit in between
// fails validation and surfaces graph.ErrWriteConflict, which the mutator
// retries. Unrelated entities hash to disjoint shards and commit in
// parallel.
type MemStore struct {
	shards     []*shard
	shardCount int
	episodes   episodeLog

	entityCount atomic.Int64
	factCount   atomic.Int64
	closedCount atomic.Int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{
			entities:       make(map[string]*graph.Entity),
			factsBySubject: make(map[string][]*graph.Fact),
			factsByObject:  make(map[string][]*graph.Fact),
		}
	}
	s.episodes.byID = make(map[string]event.Episode)
	s.episodes.byEntity = make(map[string][]string)
	return s
}

func (s *MemStore) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % s.shardCount
}

// ApplyBatch implements graph.Store.
func (s *MemStore) ApplyBatch(ctx context.Context, batch graph.Batch) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}

	// Replayed episodes are a whole-batch no-op.
	if batch.Episode.ID != "" {
		s.episodes.mu.RLock()
		_, replay := s.episodes.byID[batch.Episode.ID]
		s.episodes.mu.RUnlock()
		if replay {
			return nil
		}
	}

	now := time.Now().UTC()
	recordedAt := batch.Episode.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}

	// Read phase: snapshot versions of the entities this batch writes.
	expected := make(map[string]uint64, len(batch.Entities))
	for _, intent := range batch.Entities {
		sh := s.shards[s.shardFor(intent.ID)]
		sh.mu.RLock()
		if existing, ok := sh.entities[intent.ID]; ok {
			expected[intent.ID] = existing.Version
		}
		sh.mu.RUnlock()
	}

	// Commit phase: lock every involved shard in index order.
	involved := s.involvedShards(batch)
	for _, idx := range involved {
		s.shards[idx].mu.Lock()
	}
	defer func() {
		for _, idx := range involved {
			s.shards[idx].mu.Unlock()
		}
	}()

	// Validate the optimistic snapshot before writing anything.
	for _, intent := range batch.Entities {
		sh := s.shards[s.shardFor(intent.ID)]
		current, ok := sh.entities[intent.ID]
		snap, seen := expected[intent.ID]
		if ok != seen || (ok && current.Version != snap) {
			return fmt.Errorf("entity %s: %w", intent.ID, graph.ErrWriteConflict)
		}
	}

	for _, intent := range batch.Entities {
		s.upsertEntityLocked(intent, batch.Episode, recordedAt)
	}
	for _, intent := range batch.Facts {
		s.assertFactLocked(intent, batch.Episode, recordedAt)
	}

	if batch.Episode.ID != "" {
		s.appendEpisode(batch)
	}

	metrics.UpdateGraphEntitiesTotal(int(s.entityCount.Load()))
	metrics.UpdateGraphFactsTotal(int(s.factCount.Load()))
	return nil
}

// involvedShards returns the sorted, deduplicated shard indices a batch
// touches. Sorted acquisition order prevents lock cycles between
// concurrent batches.
func (s *MemStore) involvedShards(batch graph.Batch) []int {
	seen := make(map[int]bool)
	for _, e := range batch.Entities {
		seen[s.shardFor(e.ID)] = true
	}
	for _, f := range batch.Facts {
		seen[s.shardFor(f.Subject)] = true
		seen[s.shardFor(f.Object)] = true
	}
	idx := make([]int, 0, len(seen))
	for i := range seen {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// upsertEntityLocked merges one entity intent. Caller holds the shard lock.
func (s *MemStore) upsertEntityLocked(intent graph.EntityIntent, ep event.Episode, recordedAt time.Time) {
	sh := s.shards[s.shardFor(intent.ID)]
	occurredAt := ep.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = recordedAt
	}

	existing, ok := sh.entities[intent.ID]
	if !ok {
		e := &graph.Entity{
			ID:          intent.ID,
			Kind:        intent.Kind,
			FirstSeen:   occurredAt,
			CreatedAt:   recordedAt,
			LastUpdated: occurredAt,
			Attributes:  make(map[string]graph.Attribute, len(intent.Attributes)),
			Version:     1,
		}
		for name, value := range intent.Attributes {
			e.Attributes[name] = graph.Attribute{
				Value:      value,
				OccurredAt: occurredAt,
				Partition:  ep.Partition,
				Offset:     ep.Offset,
			}
		}
		sh.entities[intent.ID] = e
		s.entityCount.Add(1)
		return
	}

	if occurredAt.Before(existing.FirstSeen) {
		existing.FirstSeen = occurredAt
	}
	if occurredAt.After(existing.LastUpdated) {
		existing.LastUpdated = occurredAt
	}
	for name, value := range intent.Attributes {
		current, has := existing.Attributes[name]
		if !has || current.SupersededBy(occurredAt, ep.Partition, ep.Offset) {
			existing.Attributes[name] = graph.Attribute{
				Value:      value,
				OccurredAt: occurredAt,
				Partition:  ep.Partition,
				Offset:     ep.Offset,
			}
		}
	}
	existing.Version++
}

// assertFactLocked applies one fact intent with close-and-insert
// semantics. Caller holds the subject and object shard locks.
func (s *MemStore) assertFactLocked(intent graph.FactIntent, ep event.Episode, recordedAt time.Time) {
	validFrom := intent.ValidFrom
	if validFrom.IsZero() {
		validFrom = ep.OccurredAt
	}

	subjShard := s.shards[s.shardFor(intent.Subject)]
	edge := graph.Fact{Subject: intent.Subject, Relation: intent.Relation, Object: intent.Object}
	edgeKey := edge.EdgeKey()

	history := factsForEdge(subjShard.factsBySubject[intent.Subject], edgeKey)

	// Exclusive relations keep one open object per subject: close the
	// superseded memberships, preserving their history.
	if intent.Exclusive {
		for _, f := range subjShard.factsBySubject[intent.Subject] {
			if f.Relation == intent.Relation && f.Object != intent.Object && f.Open() && !validFrom.Before(f.ValidFrom) {
				vt := validFrom
				f.ValidTo = &vt
				s.closedCount.Add(1)
				metrics.RecordGraphFactClosed()
			}
		}
	}

	// An identical assertion covering this business time is a no-op.
	for _, f := range history {
		if reflect.DeepEqual(f.Value, intent.Value) && (f.ValidAt(validFrom) || f.ValidFrom.Equal(validFrom)) {
			return
		}
	}

	newFact := &graph.Fact{
		UUID:       uuid.NewString(),
		Subject:    intent.Subject,
		Relation:   intent.Relation,
		Object:     intent.Object,
		Value:      intent.Value,
		ValidFrom:  validFrom,
		RecordedAt: recordedAt,
		EpisodeID:  ep.ID,
		Partition:  ep.Partition,
		Offset:     ep.Offset,
	}

	// Close the interval the new assertion supersedes, and bound the new
	// interval by any later assertion already on the edge. Out-of-order
	// business time therefore converges to the same interval history.
	var nextFrom *time.Time
	for _, f := range history {
		if f.Open() && f.ValidFrom.Before(validFrom) {
			vt := validFrom
			f.ValidTo = &vt
			s.closedCount.Add(1)
			metrics.RecordGraphFactClosed()
			continue
		}
		if f.ValidFrom.After(validFrom) && (nextFrom == nil || f.ValidFrom.Before(*nextFrom)) {
			from := f.ValidFrom
			nextFrom = &from
		}
	}
	if nextFrom != nil {
		newFact.ValidTo = nextFrom
		s.closedCount.Add(1)
	}

	subjShard.factsBySubject[intent.Subject] = append(subjShard.factsBySubject[intent.Subject], newFact)
	objShard := s.shards[s.shardFor(intent.Object)]
	objShard.factsByObject[intent.Object] = append(objShard.factsByObject[intent.Object], newFact)
	s.factCount.Add(1)
}

func factsForEdge(facts []*graph.Fact, edgeKey string) []*graph.Fact {
	var out []*graph.Fact
	for _, f := range facts {
		if f.EdgeKey() == edgeKey {
			out = append(out, f)
		}
	}
	return out
}

// appendEpisode records the episode and indexes its entity involvements.
func (s *MemStore) appendEpisode(batch graph.Batch) {
	s.episodes.mu.Lock()
	defer s.episodes.mu.Unlock()

	ep := batch.Episode
	if _, ok := s.episodes.byID[ep.ID]; ok {
		return
	}
	s.episodes.byID[ep.ID] = ep

	// Insert keeping occurred_at order.
	i := sort.Search(len(s.episodes.ordered), func(i int) bool {
		return s.episodes.ordered[i].OccurredAt.After(ep.OccurredAt)
	})
	s.episodes.ordered = append(s.episodes.ordered, event.Episode{})
	copy(s.episodes.ordered[i+1:], s.episodes.ordered[i:])
	s.episodes.ordered[i] = ep

	for _, f := range batch.Facts {
		if f.Subject == ep.ID && f.Relation == graph.RelationInvolves {
			s.episodes.byEntity[f.Object] = append(s.episodes.byEntity[f.Object], ep.ID)
		}
	}
}

// GetEntity implements graph.Store.
func (s *MemStore) GetEntity(ctx context.Context, id string) (*graph.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	sh := s.shards[s.shardFor(id)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entities[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, graph.ErrEntityNotFound)
	}
	return e.Clone(), nil
}

// Entities implements graph.Store.
func (s *MemStore) Entities(ctx context.Context, kind graph.Kind) ([]*graph.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	var out []*graph.Entity
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entities {
			if kind == "" || e.Kind == kind {
				out = append(out, e.Clone())
			}
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// FactsAsOf implements graph.Store.
func (s *MemStore) FactsAsOf(ctx context.Context, asOf time.Time, axis graph.TimeAxis) ([]graph.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("facts as of: %w", err)
	}
	var out []graph.Fact
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, facts := range sh.factsBySubject {
			for _, f := range facts {
				switch axis {
				case graph.AxisSystemTime:
					if !f.RecordedAt.After(asOf) {
						out = append(out, *f)
					}
				case graph.AxisBusinessTime:
					if f.ValidAt(asOf) {
						out = append(out, *f)
					}
				}
			}
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// FactsOf implements graph.Store.
func (s *MemStore) FactsOf(ctx context.Context, entityID string, w graph.Window) ([]graph.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("facts of: %w", err)
	}

	overlaps := func(f *graph.Fact) bool {
		if !f.ValidFrom.Before(w.To) {
			return false
		}
		return f.ValidTo == nil || f.ValidTo.After(w.From)
	}

	seen := make(map[string]bool)
	var out []graph.Fact

	sh := s.shards[s.shardFor(entityID)]
	sh.mu.RLock()
	for _, f := range sh.factsBySubject[entityID] {
		if overlaps(f) {
			seen[f.UUID] = true
			out = append(out, *f)
		}
	}
	for _, f := range sh.factsByObject[entityID] {
		if overlaps(f) && !seen[f.UUID] {
			out = append(out, *f)
		}
	}
	sh.mu.RUnlock()
	return out, nil
}

// FactsFrom implements graph.Store.
func (s *MemStore) FactsFrom(ctx context.Context, subject string) ([]graph.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("facts from: %w", err)
	}
	sh := s.shards[s.shardFor(subject)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([]graph.Fact, 0, len(sh.factsBySubject[subject]))
	for _, f := range sh.factsBySubject[subject] {
		out = append(out, *f)
	}
	return out, nil
}

// EpisodesInWindow implements graph.Store.
func (s *MemStore) EpisodesInWindow(ctx context.Context, entityID string, w graph.Window) ([]event.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("episodes in window: %w", err)
	}
	s.episodes.mu.RLock()
	defer s.episodes.mu.RUnlock()

	var out []event.Episode
	if entityID == "" {
		lo := sort.Search(len(s.episodes.ordered), func(i int) bool {
			return !s.episodes.ordered[i].OccurredAt.Before(w.From)
		})
		for _, ep := range s.episodes.ordered[lo:] {
			if !ep.OccurredAt.Before(w.To) {
				break
			}
			out = append(out, ep)
		}
		return out, nil
	}

	for _, id := range s.episodes.byEntity[entityID] {
		ep := s.episodes.byID[id]
		if w.Contains(ep.OccurredAt) {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// Stats implements graph.Store.
func (s *MemStore) Stats(ctx context.Context) (graph.StoreStats, error) {
	if err := ctx.Err(); err != nil {
		return graph.StoreStats{}, fmt.Errorf("store stats: %w", err)
	}
	s.episodes.mu.RLock()
	episodes := int64(len(s.episodes.byID))
	s.episodes.mu.RUnlock()

	return graph.StoreStats{
		Entities:    s.entityCount.Load(),
		Facts:       s.factCount.Load(),
		ClosedFacts: s.closedCount.Load(),
		Episodes:    episodes,
	}, nil
}
