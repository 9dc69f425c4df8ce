// Package worker runs the per-partition ingestion pipeline: normalize,
// resolve, mutate, then commit the transport offset.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adkite/tempograph/internal/adapters/mq/queue"
	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/resolve"
	"github.com/adkite/tempograph/pkg/logger"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultFailureBackoff   = 50 * time.Millisecond
	defaultDeferralInterval = 5 * time.Second
	defaultMaxDeferrals     = 10
	poolShutdownTimeout     = 30 * time.Second
)

// Normalizer validates raw messages into episodes.
type Normalizer interface {
	Normalize(ctx context.Context, msg event.RawMessage) (event.Episode, error)
	Unrecord(ctx context.Context, episodeID string)
}

// Resolver maps episodes onto graph intents.
type Resolver interface {
	Resolve(ctx context.Context, ep event.Episode) (resolve.Resolution, error)
}

// Applier applies mutation batches to the graph.
type Applier interface {
	Apply(ctx context.Context, batch graph.Batch) error
}

// Log is the queue surface a worker consumes.
type Log interface {
	Fetch(ctx context.Context, partition int) (queue.Message, error)
	Commit(ctx context.Context, partition int, offset int64) error
	Rewind(partition int)
	Partitions() int
}

// deferral is an episode parked because its entity identity was ambiguous.
// It retries on an interval rather than blocking the partition.
type deferral struct {
	msg       queue.Message
	attempts  int
	notBefore time.Time
}

// Worker consumes exactly one partition, which keeps per-key ordering
// without any cross-worker coordination.
type Worker struct {
	log        Log
	normalizer Normalizer
	resolver   Resolver
	applier    Applier
	partition  int

	failureBackoff   time.Duration
	deferralInterval time.Duration
	maxDeferrals     int

	deferred []deferral

	done   chan struct{}
	logger logger.Logger
}

// NewWorker creates a worker bound to one partition.
func NewWorker(log Log, normalizer Normalizer, resolver Resolver, applier Applier, partition int, opts ...Option) *Worker {
	w := &Worker{
		log:              log,
		normalizer:       normalizer,
		resolver:         resolver,
		applier:          applier,
		partition:        partition,
		failureBackoff:   defaultFailureBackoff,
		deferralInterval: defaultDeferralInterval,
		maxDeferrals:     defaultMaxDeferrals,
		done:             make(chan struct{}),
		logger:           logger.Named("worker-" + strconv.Itoa(partition)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes the partition until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		if ctx.Err() != nil {
			return
		}
		w.retryDeferred(ctx)

		fetchCtx := ctx
		cancel := func() {}
		if len(w.deferred) > 0 {
			// Bound the wait so parked episodes get their retry slot even
			// on an idle partition.
			fetchCtx, cancel = context.WithTimeout(ctx, w.deferralInterval)
		}
		msg, err := w.log.Fetch(fetchCtx, w.partition)
		cancel()
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			continue
		}

		w.handle(ctx, msg)
	}
}

// handle runs the pipeline for one delivered message and decides between
// commit, redeliver, and defer.
func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	ep, err := w.ingest(ctx, msg)
	switch {
	case err == nil:
		w.commit(ctx, msg)
		metrics.RecordEpisodeIngested()

	case errors.Is(err, event.ErrDuplicateEpisode):
		// Replay of an already-applied episode; acknowledge and move on.
		w.commit(ctx, msg)

	case errors.Is(err, event.ErrMalformedEvent), errors.Is(err, event.ErrMissingTimestamp):
		w.logger.Warn(ctx, "dropping malformed message",
			logger.String("topic", msg.Topic),
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
		w.commit(ctx, msg)

	case errors.Is(err, resolve.ErrAmbiguousEntity):
		// Park the episode instead of dropping it or blocking the
		// partition behind it.
		metrics.RecordEpisodeDeferred()
		w.normalizer.Unrecord(ctx, ep.ID)
		w.deferred = append(w.deferred, deferral{
			msg:       msg,
			attempts:  1,
			notBefore: time.Now().Add(w.deferralInterval),
		})
		w.commit(ctx, msg)

	default:
		// Mutation failed after retries: release the idempotency record
		// and let the log redeliver (commit-after-apply).
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_failed")
		w.logger.Error(ctx, "apply failed, redelivering",
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
		if ep.ID != "" {
			w.normalizer.Unrecord(ctx, ep.ID)
		}
		w.log.Rewind(w.partition)
		metrics.RecordWorkerRetry()

		select {
		case <-ctx.Done():
		case <-time.After(w.failureBackoff):
		}
	}
}

// ingest runs normalize -> resolve -> mutate and returns the episode for
// error handling even when a later stage fails.
func (w *Worker) ingest(ctx context.Context, msg queue.Message) (event.Episode, error) {
	ep, err := w.normalizer.Normalize(ctx, msg)
	if err != nil {
		return ep, err
	}

	res, err := w.resolver.Resolve(ctx, ep)
	if err != nil {
		return ep, err
	}

	if err := w.applier.Apply(ctx, graph.Batch{
		Episode:  ep,
		Entities: res.Entities,
		Facts:    res.Facts,
	}); err != nil {
		return ep, fmt.Errorf("apply episode %s: %w", ep.ID, err)
	}
	return ep, nil
}

// retryDeferred re-runs parked episodes whose retry slot has arrived.
func (w *Worker) retryDeferred(ctx context.Context) {
	if len(w.deferred) == 0 {
		return
	}
	now := time.Now()
	remaining := w.deferred[:0]

	for _, d := range w.deferred {
		if now.Before(d.notBefore) {
			remaining = append(remaining, d)
			continue
		}

		ep, err := w.ingest(ctx, d.msg)
		switch {
		case err == nil, errors.Is(err, event.ErrDuplicateEpisode):
			metrics.RecordEpisodeIngested()

		case errors.Is(err, resolve.ErrAmbiguousEntity):
			w.normalizer.Unrecord(ctx, ep.ID)
			if d.attempts >= w.maxDeferrals {
				metrics.RecordErrorByComponent("worker", "deferral_exhausted")
				w.logger.Error(ctx, "dropping episode after exhausted deferrals",
					logger.Int64("offset", d.msg.Offset),
					logger.Int("attempts", d.attempts))
				continue
			}
			d.attempts++
			d.notBefore = now.Add(w.deferralInterval)
			remaining = append(remaining, d)

		default:
			if ep.ID != "" {
				w.normalizer.Unrecord(ctx, ep.ID)
			}
			d.notBefore = now.Add(w.deferralInterval)
			remaining = append(remaining, d)
		}
	}
	w.deferred = remaining
}

func (w *Worker) commit(ctx context.Context, msg queue.Message) {
	if err := w.log.Commit(ctx, w.partition, msg.Offset); err != nil {
		w.logger.Error(ctx, "offset commit failed",
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
	}
}

// Shutdown waits for the run loop to exit.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %d shutdown: %w", w.partition, ctx.Err())
	}
}

// Pool runs one worker per queue partition.
type Pool struct {
	workers []*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a worker per partition of the log.
func NewPool(log Log, normalizer Normalizer, resolver Resolver, applier Applier, opts ...Option) *Pool {
	p := &Pool{
		logger: logger.Named("worker-pool"),
	}
	for partition := 0; partition < log.Partitions(); partition++ {
		p.workers = append(p.workers, NewWorker(log, normalizer, resolver, applier, partition, opts...))
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Shutdown stops all workers and waits for in-flight messages to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-finished:
		metrics.UpdateWorkerActiveCount(0)
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "pool shutdown timed out")
		return fmt.Errorf("pool shutdown: %w", shutdownCtx.Err())
	}
}
