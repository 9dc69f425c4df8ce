// Package service wires the ingestion pipeline, the temporal graph, and
// the optimization jobs, and implements the dependencies required by the
// HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/adkite/tempograph/internal/adapters/dispatch"
	eventqueue "github.com/adkite/tempograph/internal/adapters/mq/queue"
	workerpool "github.com/adkite/tempograph/internal/adapters/mq/worker"
	repository "github.com/adkite/tempograph/internal/adapters/repository"
	"github.com/adkite/tempograph/internal/domain/community"
	"github.com/adkite/tempograph/internal/domain/dedupe"
	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/resolve"
	"github.com/adkite/tempograph/internal/domain/rules"
	"github.com/adkite/tempograph/internal/domain/scoring"
	"github.com/adkite/tempograph/pkg/logger"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Service owns the component graph: transport, ingestion workers, the
// bi-temporal store, community detection, the rule engine, and dispatch.
type Service struct {
	mu sync.RWMutex

	// Core components, built on Start.
	store      graph.Store
	queue      eventqueue.Queue
	index      dedupe.Index
	normalizer *event.Normalizer
	resolver   *resolve.Resolver
	mutator    *graph.Mutator
	query      *graph.QueryEngine
	detector   *community.Detector
	engine     *rules.Engine
	dispatcher *dispatch.Dispatcher
	pool       *workerpool.Pool

	// Configuration.
	partitions          int
	queueCapacity       int
	dedupeSize          int
	shardCount          int
	confidenceThreshold float64
	mutateMaxRetries    int
	mutateBackoffBase   time.Duration
	communityInterval   time.Duration
	communityWindow     time.Duration
	communityIterations int
	ruleTick            time.Duration
	ruleMinSamples      int
	ruleAlertCount      int
	dispatchTimeout     time.Duration
	dispatchMaxRetries  int
	dispatchBackoffBase time.Duration
	maxHops             int

	// Injected collaborators. Defaults are the in-memory store, the
	// simulated match scorer, and the no-op platform client.
	externalStore graph.Store
	scorer        scoring.Scorer
	platform      dispatch.Client

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPartitions sets the transport partition count; one ingestion worker
// runs per partition.
func WithPartitions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.partitions = n
		}
	}
}

// WithQueueCapacity bounds each partition's message buffer.
func WithQueueCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithDedupeSize sets the size of the episode idempotency index.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithShardCount configures the in-memory store's shard count.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithGraphStore injects an externally built store (the Bolt backend).
func WithGraphStore(store graph.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.externalStore = store
		}
	}
}

// WithScorer injects the probabilistic match scorer.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithPlatformClient injects the ad platform control client.
func WithPlatformClient(client dispatch.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.platform = client
		}
	}
}

// WithConfidenceThreshold sets the minimum accepted match confidence for
// probabilistic entity resolution.
func WithConfidenceThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.confidenceThreshold = t
		}
	}
}

// WithMutationRetries configures write-conflict retry behavior.
func WithMutationRetries(maxRetries int, backoffBase time.Duration) Option {
	return func(s *Service) {
		if maxRetries >= 0 {
			s.mutateMaxRetries = maxRetries
		}
		if backoffBase > 0 {
			s.mutateBackoffBase = backoffBase
		}
	}
}

// WithCommunityDetection configures the detection job.
func WithCommunityDetection(interval, window time.Duration, maxIterations int) Option {
	return func(s *Service) {
		if interval > 0 {
			s.communityInterval = interval
		}
		if window > 0 {
			s.communityWindow = window
		}
		if maxIterations > 0 {
			s.communityIterations = maxIterations
		}
	}
}

// WithRuleEngine configures the evaluation loop.
func WithRuleEngine(tick time.Duration, minSamples, failureAlertCount int) Option {
	return func(s *Service) {
		if tick > 0 {
			s.ruleTick = tick
		}
		if minSamples > 0 {
			s.ruleMinSamples = minSamples
		}
		if failureAlertCount > 0 {
			s.ruleAlertCount = failureAlertCount
		}
	}
}

// WithDispatch configures platform call timeouts and retries.
func WithDispatch(timeout time.Duration, maxRetries int, backoffBase time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.dispatchTimeout = timeout
		}
		if maxRetries >= 0 {
			s.dispatchMaxRetries = maxRetries
		}
		if backoffBase > 0 {
			s.dispatchBackoffBase = backoffBase
		}
	}
}

// WithMaxTraversalHops caps traversal queries.
func WithMaxTraversalHops(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHops = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		partitions:          runtime.NumCPU(),
		queueCapacity:       100_000,
		dedupeSize:          500_000,
		shardCount:          8,
		confidenceThreshold: 0.75,
		mutateMaxRetries:    5,
		mutateBackoffBase:   5 * time.Millisecond,
		communityInterval:   time.Minute,
		communityWindow:     24 * time.Hour,
		communityIterations: 20,
		ruleTick:            30 * time.Second,
		ruleMinSamples:      30,
		ruleAlertCount:      3,
		dispatchTimeout:     2 * time.Second,
		dispatchMaxRetries:  4,
		dispatchBackoffBase: 100 * time.Millisecond,
		maxHops:             6,
		platform:            dispatch.NoopClient{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and launches all components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting temporal graph service")

	s.store = s.externalStore
	if s.store == nil {
		s.store = repository.NewMemStore(repository.WithShardCount(s.shardCount))
	}

	s.index = dedupe.NewMemoryIndex(dedupe.WithMaxSize(s.dedupeSize))
	s.normalizer = event.NewNormalizer(s.index)

	if s.scorer == nil {
		s.scorer = scoring.NewInMemoryScorer()
	}
	s.resolver = resolve.NewResolver(s.scorer,
		resolve.WithConfidenceThreshold(s.confidenceThreshold))

	s.mutator = graph.NewMutator(s.store,
		graph.WithMaxRetries(s.mutateMaxRetries),
		graph.WithBackoffBase(s.mutateBackoffBase))
	s.query = graph.NewQueryEngine(s.store, graph.WithMaxHops(s.maxHops))

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithPartitions(s.partitions),
		eventqueue.WithCapacity(s.queueCapacity))

	s.detector = community.NewDetector(s.store, s.mutator,
		community.WithInterval(s.communityInterval),
		community.WithWindow(s.communityWindow),
		community.WithMaxIterations(s.communityIterations))

	s.dispatcher = dispatch.NewDispatcher(s.platform, s.queue,
		dispatch.WithCallTimeout(s.dispatchTimeout),
		dispatch.WithMaxRetries(s.dispatchMaxRetries),
		dispatch.WithBackoffBase(s.dispatchBackoffBase))

	s.engine = rules.NewEngine(s.store, rules.NewGraphMetricSource(s.store), s.dispatcher,
		rules.WithTickInterval(s.ruleTick),
		rules.WithMinSamples(s.ruleMinSamples),
		rules.WithFailureAlertCount(s.ruleAlertCount))

	s.pool = workerpool.NewPool(s.queue, s.normalizer, s.resolver, s.mutator)
	s.pool.Start(ctx)
	s.detector.Start(ctx)
	s.engine.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "temporal graph service started",
		logger.Int("partitions", s.partitions),
		logger.Int("queue_capacity", s.queueCapacity),
		logger.Int("dedupe_size", s.dedupeSize))
	return nil
}

// Stop gracefully shuts down the service: jobs first, then workers, then
// the transport.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping temporal graph service")

	s.engine.Stop()
	s.detector.Stop()

	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if closer, ok := s.store.(interface{ Close(context.Context) error }); ok {
		_ = closer.Close(ctx)
	}

	s.started = false
	s.logger.Info(ctx, "temporal graph service stopped")
}

// Publish pushes a raw event onto its transport topic. Returns false on
// backpressure or when the service is not running.
func (s *Service) Publish(ctx context.Context, topic, key string, value []byte) bool {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return false
	}
	return q.Enqueue(ctx, topic, key, value)
}

// Snapshot materializes the graph as of a point in time.
func (s *Service) Snapshot(ctx context.Context, asOf time.Time, axis graph.TimeAxis) (graph.Snapshot, error) {
	return s.query.Snapshot(ctx, asOf, axis)
}

// Timeline returns an entity's history within the window.
func (s *Service) Timeline(ctx context.Context, entityID string, w graph.Window) (*graph.Timeline, error) {
	return s.query.TemporalQuery(ctx, entityID, w)
}

// Reachable runs a bounded temporal traversal.
func (s *Service) Reachable(ctx context.Context, from string, relation graph.Relation, hops int, at time.Time) ([]string, error) {
	return s.query.Reachable(ctx, from, relation, hops, at)
}

// Communities returns the latest detection result.
func (s *Service) Communities() []graph.Community {
	return s.detector.Communities()
}

// UpsertRule stages a rule change, effective at the next tick.
func (s *Service) UpsertRule(r rules.Rule) error {
	return s.engine.UpsertRule(r)
}

// RemoveRule stages a rule removal, effective at the next tick.
func (s *Service) RemoveRule(id string) error {
	return s.engine.RemoveRule(id)
}

// Rules returns the active rule set.
func (s *Service) Rules() []rules.Rule {
	return s.engine.Rules()
}

// Decisions returns decision history, newest first.
func (s *Service) Decisions(entityID string, w graph.Window) []rules.Decision {
	return s.engine.Decisions(entityID, w)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":    s.started,
		"partitions": s.partitions,
	}
	if !s.started {
		return stats
	}

	stats["queue_length"] = s.queue.Len(ctx)
	stats["dedupe_entries"] = s.index.Size()
	stats["active_rules"] = len(s.engine.Rules())
	stats["communities"] = len(s.detector.Communities())

	if storeStats, err := s.store.Stats(ctx); err == nil {
		stats["entities"] = storeStats.Entities
		stats["facts"] = storeStats.Facts
		stats["closed_facts"] = storeStats.ClosedFacts
		stats["episodes"] = storeStats.Episodes
		metrics.UpdateGraphEntitiesTotal(int(storeStats.Entities))
		metrics.UpdateGraphFactsTotal(int(storeStats.Facts))
	}
	return stats
}

// Describe summarizes the wiring for startup logs.
func (s *Service) Describe() string {
	backend := "memory"
	if s.externalStore != nil {
		backend = "bolt"
	}
	return fmt.Sprintf("backend=%s partitions=%d", backend, s.partitions)
}
