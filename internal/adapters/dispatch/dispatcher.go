// Package dispatch carries rule decisions out of the engine: typed calls
// against the ad platform plus published records on the outbound topics.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adkite/tempograph/internal/domain/rules"
	"github.com/adkite/tempograph/pkg/logger"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Outbound topics.
const (
	TopicOptimizations   = "ctv_optimizations"
	TopicAlerts          = "ctv_alerts"
	TopicRecommendations = "ctv_recommendations"
)

// Default dispatcher configuration.
const (
	defaultCallTimeout = 2 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 100 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

// Publisher is the outbound-topic surface. The in-memory queue satisfies
// it directly.
type Publisher interface {
	Enqueue(ctx context.Context, topic, key string, value []byte) bool
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithCallTimeout bounds each platform call attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.callTimeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed platform call is retried.
func WithMaxRetries(n int) Option {
	return func(disp *Dispatcher) {
		if n >= 0 {
			disp.maxRetries = n
		}
	}
}

// WithBackoffBase sets the base delay for retry backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.backoffBase = d
		}
	}
}

// Dispatcher executes decisions against the ad platform with per-attempt
// timeouts and capped exponential backoff, then publishes the record. A
// decision is never silently dropped: exhausted retries publish an alert
// and return an error.
type Dispatcher struct {
	client    Client
	publisher Publisher

	callTimeout time.Duration
	maxRetries  int
	backoffBase time.Duration
	log         logger.Logger
}

// NewDispatcher creates a dispatcher over the given platform client and
// outbound publisher.
func NewDispatcher(client Client, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:      client,
		publisher:   publisher,
		callTimeout: defaultCallTimeout,
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		log:         logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one decision. Custom actions skip the platform call
// and go out as recommendations for a human to act on.
func (d *Dispatcher) Dispatch(ctx context.Context, decision rules.Decision) error {
	start := time.Now()
	defer func() {
		metrics.RecordDispatchLatency(float64(time.Since(start).Milliseconds()))
	}()

	if decision.Action == rules.ActionCustom {
		return d.publish(ctx, TopicRecommendations, decision)
	}

	if err := d.callWithRetry(ctx, decision); err != nil {
		metrics.RecordDispatchFailure()
		d.alert(ctx, "dispatch", fmt.Sprintf(
			"decision %s (%s on %s) failed: %v",
			decision.ID, decision.Action, decision.TargetEntityID, err))
		return fmt.Errorf("decision %s: %w: %v", decision.ID, ErrDispatchFailed, err)
	}

	return d.publish(ctx, TopicOptimizations, decision)
}

// Alert publishes an operational alert on the alerts topic.
func (d *Dispatcher) Alert(ctx context.Context, component, message string) error {
	return d.alert(ctx, component, message)
}

// callWithRetry runs the typed platform call for the decision, retrying
// transient failures with capped exponential backoff.
func (d *Dispatcher) callWithRetry(ctx context.Context, decision rules.Decision) error {
	backoff := d.backoffBase
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordDispatchRetry()
			select {
			case <-ctx.Done():
				return fmt.Errorf("dispatch cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		metrics.RecordDispatchAttempt()
		lastErr = d.call(ctx, decision)
		if lastErr == nil {
			return nil
		}
		d.log.Warn(ctx, "platform call failed",
			logger.String("decision_id", decision.ID),
			logger.Int("attempt", attempt+1),
			logger.Error(lastErr))
	}
	return lastErr
}

// call maps the decision's action onto the platform client.
func (d *Dispatcher) call(ctx context.Context, decision rules.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	switch decision.Action {
	case rules.ActionAdjustBidPrice:
		multiplier, ok := floatParam(decision.ActionParams, "multiplier")
		if !ok {
			return fmt.Errorf("%w: multiplier", ErrMissingActionParams)
		}
		return d.client.AdjustBid(ctx, decision.TargetEntityID, multiplier)

	case rules.ActionPauseCreative:
		return d.client.PauseCreative(ctx, decision.TargetEntityID)

	case rules.ActionCapFrequency:
		limit, ok := intParam(decision.ActionParams, "max_impressions")
		if !ok {
			return fmt.Errorf("%w: max_impressions", ErrMissingActionParams)
		}
		return d.client.SetFrequencyCap(ctx, decision.TargetEntityID, limit)

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, decision.Action)
	}
}

// publish writes a decision record to an outbound topic.
func (d *Dispatcher) publish(ctx context.Context, topic string, decision rules.Decision) error {
	value, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", decision.ID, err)
	}
	if !d.publisher.Enqueue(ctx, topic, decision.TargetEntityID, value) {
		metrics.RecordErrorByComponent("dispatch", "publish_refused")
		return fmt.Errorf("topic %s: %w", topic, ErrPublisherFull)
	}
	return nil
}

// alertRecord is the wire shape published on the alerts topic.
type alertRecord struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raised_at"`
}

func (d *Dispatcher) alert(ctx context.Context, component, message string) error {
	value, err := json.Marshal(alertRecord{
		Component: component,
		Message:   message,
		RaisedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if !d.publisher.Enqueue(ctx, TopicAlerts, component, value) {
		metrics.RecordErrorByComponent("dispatch", "alert_refused")
		return fmt.Errorf("topic %s: %w", TopicAlerts, ErrPublisherFull)
	}
	metrics.RecordAlertPublished()
	return nil
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	f, ok := floatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}
