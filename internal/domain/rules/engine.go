package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/pkg/logger"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Default engine configuration.
const (
	defaultTickInterval      = 30 * time.Second
	defaultMinSamples        = 30
	defaultFailureAlertCount = 3
)

// ActionSink receives decisions and operational alerts. The dispatch
// adapter implements it against the ad platform and the outbound topics.
type ActionSink interface {
	Dispatch(ctx context.Context, d Decision) error
	Alert(ctx context.Context, component, message string) error
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTickInterval sets the evaluation cadence.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithMinSamples sets the evidence floor below which evaluation skips.
func WithMinSamples(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minSamples = n
		}
	}
}

// WithFailureAlertCount sets how many consecutive failed evaluations of one
// rule raise an alert.
func WithFailureAlertCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.failureAlertCount = n
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine evaluates the enabled rules on a timer. Each (rule, entity)
// evaluation moves Idle -> Evaluating -> {Decided, Skipped, Failed}; ticks
// are single-flight, and rule admin changes stage until the next tick
// boundary.
type Engine struct {
	store  graph.Store
	source MetricSource
	sink   ActionSink

	tickInterval      time.Duration
	minSamples        int
	failureAlertCount int
	now               func() time.Time
	log               logger.Logger

	inFlight atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.RWMutex
	active   map[string]Rule
	staged   map[string]*Rule // nil entry = staged removal
	history  []Decision
	failures map[string]int
}

// NewEngine creates a rule engine over the given collaborators.
func NewEngine(store graph.Store, source MetricSource, sink ActionSink, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		source:            source,
		sink:              sink,
		tickInterval:      defaultTickInterval,
		minSamples:        defaultMinSamples,
		failureAlertCount: defaultFailureAlertCount,
		now:               func() time.Time { return time.Now().UTC() },
		log:               logger.Named("rules.engine"),
		active:            make(map[string]Rule),
		staged:            make(map[string]*Rule),
		failures:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the tick loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.TickOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					e.log.Error(ctx, "tick failed", logger.Error(err))
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// UpsertRule stages a rule change; it takes effect at the next tick
// boundary.
func (e *Engine) UpsertRule(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = e.now()

	e.mu.Lock()
	e.staged[r.ID] = &r
	e.mu.Unlock()
	return nil
}

// RemoveRule stages a rule removal, effective at the next tick boundary.
// Returns ErrRuleNotFound when the rule is neither active nor staged.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, isActive := e.active[id]
	stagedRule, isStaged := e.staged[id]
	if !isActive && (!isStaged || stagedRule == nil) {
		return fmt.Errorf("%s: %w", id, ErrRuleNotFound)
	}
	e.staged[id] = nil
	return nil
}

// Rules returns the currently active rule set, sorted by ID.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.active))
	for _, r := range e.active {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Decisions returns history filtered by entity (empty = all) and window
// (zero = all), newest first.
func (e *Engine) Decisions(entityID string, w graph.Window) []Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Decision
	for i := len(e.history) - 1; i >= 0; i-- {
		d := e.history[i]
		if entityID != "" && d.TargetEntityID != entityID {
			continue
		}
		if w.Bounded() && !w.Contains(d.DecidedAt) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// TickOnce runs one full evaluation pass. Overlapping ticks are skipped.
func (e *Engine) TickOnce(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	defer func() {
		metrics.RecordRuleTickDuration(float64(time.Since(start).Milliseconds()))
	}()

	rules := e.promoteStaged()
	metrics.UpdateActiveRuleCount(len(rules))

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("tick cancelled: %w", err)
		}
		if !rule.Enabled {
			continue
		}
		if err := e.evaluateRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

// promoteStaged applies staged admin changes and returns the active set.
func (e *Engine) promoteStaged() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, r := range e.staged {
		if r == nil {
			delete(e.active, id)
			delete(e.failures, id)
			continue
		}
		e.active[id] = *r
	}
	e.staged = make(map[string]*Rule)

	out := make([]Rule, 0, len(e.active))
	for _, r := range e.active {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// evaluateRule runs one rule across its candidate entities.
func (e *Engine) evaluateRule(ctx context.Context, rule Rule) error {
	candidates, err := e.store.Entities(ctx, rule.TargetKind)
	if err != nil {
		return fmt.Errorf("candidates for rule %s: %w", rule.ID, err)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	end := e.now()
	window := graph.Window{From: end.Add(-rule.Window), To: end}

	failedAny := false
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rule %s cancelled: %w", rule.ID, err)
		}
		if e.evaluateCandidate(ctx, rule, candidate.ID, window) == OutcomeFailed {
			failedAny = true
		}
	}

	e.trackFailures(ctx, rule.ID, failedAny)
	return nil
}

// evaluateCandidate runs the Idle -> Evaluating -> terminal state machine
// for one (rule, entity) pair.
func (e *Engine) evaluateCandidate(ctx context.Context, rule Rule, entityID string, w graph.Window) Outcome {
	value, samples, err := e.source.Compute(ctx, rule.Condition.Metric, entityID, w)
	if err != nil {
		metrics.RecordRuleEvaluation(string(OutcomeFailed))
		e.log.Error(ctx, "metric computation failed",
			logger.String("rule_id", rule.ID),
			logger.String("entity_id", entityID),
			logger.Error(err))
		return OutcomeFailed
	}

	if samples < e.minSamples {
		metrics.RecordRuleEvaluation(string(OutcomeSkipped))
		e.log.Debug(ctx, "skipped: insufficient samples",
			logger.String("rule_id", rule.ID),
			logger.String("entity_id", entityID),
			logger.Int("samples", samples),
			logger.Int("min_samples", e.minSamples))
		return OutcomeSkipped
	}

	confidence := e.confidence(samples)
	if !rule.Condition.Holds(value) || confidence < rule.ConfidenceThreshold {
		metrics.RecordRuleEvaluation(string(OutcomeSkipped))
		return OutcomeSkipped
	}

	decision := Decision{
		ID:             uuid.NewString(),
		RuleID:         rule.ID,
		TargetEntityID: entityID,
		Action:         rule.Action,
		ActionParams:   rule.ActionParams,
		MetricValue:    value,
		Confidence:     confidence,
		DecidedAt:      e.now(),
		WindowStart:    w.From,
		WindowEnd:      w.To,
	}

	e.mu.Lock()
	e.history = append(e.history, decision)
	e.mu.Unlock()
	metrics.RecordDecisionEmitted()
	metrics.RecordRuleEvaluation(string(OutcomeDecided))

	if e.sink != nil {
		if err := e.sink.Dispatch(ctx, decision); err != nil {
			e.log.Error(ctx, "dispatch failed",
				logger.String("decision_id", decision.ID),
				logger.Error(err))
		}
	}
	return OutcomeDecided
}

// confidence grows with sample count and saturates toward 1. At the
// minimum sample floor it is 0.5, giving rules a meaningful threshold
// range.
func (e *Engine) confidence(samples int) float64 {
	return float64(samples) / float64(samples+e.minSamples)
}

// trackFailures counts consecutive ticks in which a rule failed and raises
// an alert past the limit.
func (e *Engine) trackFailures(ctx context.Context, ruleID string, failed bool) {
	e.mu.Lock()
	if !failed {
		e.failures[ruleID] = 0
		e.mu.Unlock()
		return
	}
	e.failures[ruleID]++
	count := e.failures[ruleID]
	e.mu.Unlock()

	if count >= e.failureAlertCount && e.sink != nil {
		msg := fmt.Sprintf("rule %s failed %d consecutive ticks", ruleID, count)
		if err := e.sink.Alert(ctx, "rules.engine", msg); err != nil {
			e.log.Error(ctx, "alert failed", logger.String("rule_id", ruleID), logger.Error(err))
		}
	}
}
