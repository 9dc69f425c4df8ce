package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/pkg/metrics"
)

const defaultMaxHops = 6

// QueryEngineOption applies a configuration option to the QueryEngine.
type QueryEngineOption func(*QueryEngine)

// WithMaxHops caps traversal depth for Reachable.
func WithMaxHops(n int) QueryEngineOption {
	return func(q *QueryEngine) {
		if n > 0 {
			q.maxHops = n
		}
	}
}

// QueryEngine provides the read side of the graph: point-in-time
// snapshots, per-entity timelines, and temporal traversal. All results are
// copies; readers never block ingestion.
type QueryEngine struct {
	store   Store
	maxHops int
}

// NewQueryEngine creates a query engine over the given store.
func NewQueryEngine(store Store, opts ...QueryEngineOption) *QueryEngine {
	q := &QueryEngine{
		store:   store,
		maxHops: defaultMaxHops,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Snapshot is a consistent point-in-time view of the graph.
type Snapshot struct {
	AsOf     time.Time `json:"as_of"`
	Axis     TimeAxis  `json:"axis"`
	Entities []*Entity `json:"entities"`
	Facts    []Fact    `json:"facts"`
}

// Snapshot materializes the graph as of a point in time.
//
// AxisSystemTime reconstructs what the system knew at asOf (RecordedAt <=
// asOf, including facts later closed). AxisBusinessTime reconstructs what
// was true in the world at asOf (ValidFrom <= asOf < ValidTo).
func (q *QueryEngine) Snapshot(ctx context.Context, asOf time.Time, axis TimeAxis) (Snapshot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGraphQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if !axis.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown time axis %q", ErrUnboundedQuery, axis)
	}

	facts, err := q.store.FactsAsOf(ctx, asOf, axis)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot facts: %w", err)
	}

	entities, err := q.store.Entities(ctx, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot entities: %w", err)
	}

	// The system axis sees an entity once the store recorded it; the
	// business axis sees it from its earliest evidence. Late arrivals make
	// these differ.
	visible := entities[:0]
	for _, e := range entities {
		cutoff := e.FirstSeen
		if axis == AxisSystemTime {
			cutoff = e.CreatedAt
		}
		if !cutoff.After(asOf) {
			visible = append(visible, e)
		}
	}

	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })
	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].ValidFrom.Equal(facts[j].ValidFrom) {
			return facts[i].ValidFrom.Before(facts[j].ValidFrom)
		}
		return facts[i].UUID < facts[j].UUID
	})

	return Snapshot{AsOf: asOf, Axis: axis, Entities: visible, Facts: facts}, nil
}

// TimelineItem is one step of an entity's history: an episode, a fact
// assertion, or both never at once.
type TimelineItem struct {
	OccurredAt time.Time      `json:"occurred_at"`
	Episode    *event.Episode `json:"episode,omitempty"`
	Fact       *Fact          `json:"fact,omitempty"`
}

// Timeline is a lazy, restartable iterator over an entity's history in
// business-time order. It holds a fixed snapshot of matching items taken
// when the query ran; Reset rewinds to the beginning.
type Timeline struct {
	items []TimelineItem
	pos   int
}

// NewTimeline builds a timeline over pre-sorted items.
func NewTimeline(items []TimelineItem) *Timeline {
	return &Timeline{items: items}
}

// Next returns the next item, or false when the timeline is exhausted.
func (t *Timeline) Next() (TimelineItem, bool) {
	if t.pos >= len(t.items) {
		return TimelineItem{}, false
	}
	item := t.items[t.pos]
	t.pos++
	return item, true
}

// Reset rewinds the iterator to the first item.
func (t *Timeline) Reset() {
	t.pos = 0
}

// Len returns the total number of items in the timeline.
func (t *Timeline) Len() int {
	return len(t.items)
}

// TemporalQuery returns the entity's episodes and fact assertions within
// the window, ordered by occurred_at. Unbounded windows are rejected; an
// empty window yields an empty timeline, not an error.
func (q *QueryEngine) TemporalQuery(ctx context.Context, entityID string, w Window) (*Timeline, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGraphQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if !w.Bounded() {
		return nil, fmt.Errorf("%w: window must have both bounds", ErrUnboundedQuery)
	}

	episodes, err := q.store.EpisodesInWindow(ctx, entityID, w)
	if err != nil {
		return nil, fmt.Errorf("timeline episodes: %w", err)
	}
	facts, err := q.store.FactsOf(ctx, entityID, w)
	if err != nil {
		return nil, fmt.Errorf("timeline facts: %w", err)
	}

	items := make([]TimelineItem, 0, len(episodes)+len(facts))
	for i := range episodes {
		ep := episodes[i]
		items = append(items, TimelineItem{OccurredAt: ep.OccurredAt, Episode: &ep})
	}
	for i := range facts {
		f := facts[i]
		if !w.Contains(f.ValidFrom) {
			continue
		}
		items = append(items, TimelineItem{OccurredAt: f.ValidFrom, Fact: &f})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].OccurredAt.Before(items[j].OccurredAt)
	})

	return &Timeline{items: items}, nil
}

// Reachable returns the IDs of nodes reachable from the given node within
// hops steps, following only facts of the given relation (any relation when
// empty) that were valid at business time at. Facts valid before or after
// never leak into the result.
func (q *QueryEngine) Reachable(ctx context.Context, from string, relation Relation, hops int, at time.Time) ([]string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGraphQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if hops <= 0 || hops > q.maxHops {
		hops = q.maxHops
	}

	visited := map[string]bool{from: true}
	frontier := []string{from}
	var reached []string

	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("traversal cancelled: %w", err)
		}

		var next []string
		for _, node := range frontier {
			facts, err := q.store.FactsFrom(ctx, node)
			if err != nil {
				return nil, fmt.Errorf("traversal facts from %s: %w", node, err)
			}
			for _, f := range facts {
				if relation != "" && f.Relation != relation {
					continue
				}
				if !f.ValidAt(at) {
					continue
				}
				if visited[f.Object] {
					continue
				}
				visited[f.Object] = true
				reached = append(reached, f.Object)
				next = append(next, f.Object)
			}
		}
		frontier = next
	}

	sort.Strings(reached)
	return reached, nil
}
