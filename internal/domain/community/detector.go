package community

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/pkg/logger"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Default detection configuration.
const (
	defaultInterval      = time.Minute
	defaultWindow        = 24 * time.Hour
	defaultMaxIterations = 20
)

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithInterval sets how often detection runs.
func WithInterval(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.interval = d
		}
	}
}

// WithWindow bounds how far back co-occurrence evidence is considered.
func WithWindow(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.window = d
		}
	}
}

// WithMaxIterations bounds the propagation iteration budget.
func WithMaxIterations(n int) Option {
	return func(det *Detector) {
		if n > 0 {
			det.maxIterations = n
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(det *Detector) {
		if now != nil {
			det.now = now
		}
	}
}

// Detector periodically recomputes entity communities from the recent
// co-occurrence subgraph and writes membership through the mutator as
// BELONGS_TO facts. It never touches entity records directly.
type Detector struct {
	store         graph.Store
	mutator       *graph.Mutator
	interval      time.Duration
	window        time.Duration
	maxIterations int
	now           func() time.Time
	log           logger.Logger

	inFlight atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.RWMutex
	current []graph.Community
}

// NewDetector creates a detector over the given store and mutator.
func NewDetector(store graph.Store, mutator *graph.Mutator, opts ...Option) *Detector {
	d := &Detector{
		store:         store,
		mutator:       mutator,
		interval:      defaultInterval,
		window:        defaultWindow,
		maxIterations: defaultMaxIterations,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger.Named("community.detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the timed detection loop.
func (d *Detector) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					d.log.Error(ctx, "detection run failed", logger.Error(err))
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight run to finish.
func (d *Detector) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

// Communities returns the most recent assignment.
func (d *Detector) Communities() []graph.Community {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]graph.Community, len(d.current))
	copy(out, d.current)
	return out
}

// RunOnce performs one detection pass. Overlapping runs are skipped
// (single-flight); non-convergence keeps the previous assignment and
// returns ErrDetectionTimeout.
func (d *Detector) RunOnce(ctx context.Context) ([]graph.Community, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		return d.Communities(), nil
	}
	defer d.inFlight.Store(false)

	start := time.Now()
	metrics.RecordCommunityRun()
	defer func() {
		metrics.RecordCommunityDuration(float64(time.Since(start).Milliseconds()))
	}()

	asOf := d.now()
	adj, err := d.buildAdjacency(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("build co-occurrence graph: %w", err)
	}
	if len(adj) == 0 {
		return nil, nil
	}

	labels, converged := Propagate(adj, d.maxIterations)
	if !converged {
		metrics.RecordCommunityTimeout()
		return d.Communities(), fmt.Errorf("%w: %d iterations", ErrDetectionTimeout, d.maxIterations)
	}

	communities := d.materialize(ctx, labels, adj, asOf)

	d.mu.Lock()
	d.current = communities
	d.mu.Unlock()

	metrics.UpdateCommunitiesDetected(len(communities))
	d.log.Info(ctx, "detection complete",
		logger.Int("communities", len(communities)),
		logger.Int("nodes", len(adj)))
	return communities, nil
}

// buildAdjacency assembles the weighted undirected graph of entity
// co-occurrence from derived entity-to-entity facts asserted within the
// window. Episode involvement and membership facts are excluded: the first
// would link everything through episodes, the second would feed detection
// its own output.
func (d *Detector) buildAdjacency(ctx context.Context, asOf time.Time) (map[string]map[string]int, error) {
	facts, err := d.store.FactsAsOf(ctx, asOf, graph.AxisBusinessTime)
	if err != nil {
		return nil, err
	}

	cutoff := asOf.Add(-d.window)
	adj := make(map[string]map[string]int)
	link := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]int)
		}
		adj[a][b]++
	}

	for _, f := range facts {
		switch f.Relation {
		case graph.RelationTargets, graph.RelationDisplays, graph.RelationViewedOn:
		default:
			continue
		}
		if f.ValidFrom.Before(cutoff) {
			continue
		}
		link(f.Subject, f.Object)
		link(f.Object, f.Subject)
	}
	return adj, nil
}

// materialize turns a label assignment into community summaries and writes
// membership facts. A failed membership write is logged and skipped; the
// next run reasserts it.
func (d *Detector) materialize(ctx context.Context, labels map[string]string, adj map[string]map[string]int, asOf time.Time) []graph.Community {
	var communities []graph.Community
	for lowest, members := range Group(labels) {
		id := "com_" + lowest
		c := graph.Community{
			ID:         id,
			DetectedAt: asOf,
			Members:    members,
			KindCounts: d.countKinds(ctx, members),
			Cohesion:   cohesion(members, labels, adj),
		}
		communities = append(communities, c)

		if err := d.mutator.ReplaceMembership(ctx, id, members, asOf); err != nil {
			d.log.Error(ctx, "membership write failed",
				logger.String("community_id", id),
				logger.Error(err))
			continue
		}
		metrics.RecordCommunityMembership()
	}

	sortCommunities(communities)
	return communities
}

func (d *Detector) countKinds(ctx context.Context, members []string) map[graph.Kind]int {
	counts := make(map[graph.Kind]int)
	for _, m := range members {
		e, err := d.store.GetEntity(ctx, m)
		if err != nil {
			continue
		}
		counts[e.Kind]++
	}
	return counts
}

// cohesion is the fraction of the members' edge weight that stays inside
// the community.
func cohesion(members []string, labels map[string]string, adj map[string]map[string]int) float64 {
	if len(members) == 0 {
		return 0
	}
	label := labels[members[0]]

	var intra, total int
	for _, m := range members {
		for neighbor, w := range adj[m] {
			total += w
			if labels[neighbor] == label {
				intra += w
			}
		}
	}
	if total == 0 {
		return 1
	}
	return float64(intra) / float64(total)
}

func sortCommunities(cs []graph.Community) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
}
