// Package rules evaluates optimization rules against windowed performance
// metrics and emits immutable decisions for dispatch.
package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adkite/tempograph/internal/domain/graph"
)

// Metric enumerates the windowed performance metrics a condition can test.
type Metric string

const (
	MetricAvgViewability Metric = "avg_viewability"
	MetricCompletionRate Metric = "completion_rate"
	MetricCTR            Metric = "ctr"
	MetricConversionRate Metric = "conversion_rate"
	MetricAvgBidPrice    Metric = "avg_bid_price"
	MetricFrequency      Metric = "frequency"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricAvgViewability, MetricCompletionRate, MetricCTR,
		MetricConversionRate, MetricAvgBidPrice, MetricFrequency:
		return true
	}
	return false
}

// Comparator enumerates the predicate operators.
type Comparator string

const (
	CompareLT  Comparator = "lt"
	CompareLTE Comparator = "lte"
	CompareGT  Comparator = "gt"
	CompareGTE Comparator = "gte"
	CompareEQ  Comparator = "eq"
)

// Action enumerates the automated responses a rule can trigger.
type Action string

const (
	ActionAdjustBidPrice Action = "adjust_bid_price"
	ActionPauseCreative  Action = "pause_creative"
	ActionCapFrequency   Action = "cap_frequency"
	ActionCustom         Action = "custom"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionAdjustBidPrice, ActionPauseCreative, ActionCapFrequency, ActionCustom:
		return true
	}
	return false
}

// Condition is the tagged predicate a rule evaluates. Conditions are data,
// not code: the engine interprets them, it never executes anything.
type Condition struct {
	Metric     Metric     `json:"metric"`
	Comparator Comparator `json:"comparator"`
	Threshold  float64    `json:"threshold"`
}

// Holds reports whether the observed value satisfies the condition.
func (c Condition) Holds(value float64) bool {
	switch c.Comparator {
	case CompareLT:
		return value < c.Threshold
	case CompareLTE:
		return value <= c.Threshold
	case CompareGT:
		return value > c.Threshold
	case CompareGTE:
		return value >= c.Threshold
	case CompareEQ:
		return value == c.Threshold
	}
	return false
}

// Rule is one optimization rule. Admin changes stage until the next tick
// boundary, so an in-flight evaluation always sees one consistent rule set.
type Rule struct {
	ID                  string         `json:"id"`
	Condition           Condition      `json:"condition"`
	Action              Action         `json:"action"`
	ActionParams        map[string]any `json:"action_params,omitempty"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	Window              time.Duration  `json:"window"`
	TargetKind          graph.Kind     `json:"target_kind"`
	Enabled             bool           `json:"enabled"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Validate rejects rules the engine could not evaluate.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty rule id", ErrInvalidRule)
	}
	if !r.Condition.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidRule, r.Condition.Metric)
	}
	switch r.Condition.Comparator {
	case CompareLT, CompareLTE, CompareGT, CompareGTE, CompareEQ:
	default:
		return fmt.Errorf("%w: unknown comparator %q", ErrInvalidRule, r.Condition.Comparator)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %v outside [0, 1]", ErrInvalidRule, r.ConfidenceThreshold)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: non-positive window", ErrInvalidRule)
	}
	if r.TargetKind == "" {
		return fmt.Errorf("%w: empty target kind", ErrInvalidRule)
	}
	// Actions that carry parameters must bring them at admin time, or
	// every decision the rule emits would fail at dispatch.
	switch r.Action {
	case ActionAdjustBidPrice:
		if !hasNumericParam(r.ActionParams, "multiplier") {
			return fmt.Errorf("%w: adjust_bid_price requires numeric action_params.multiplier", ErrInvalidRule)
		}
	case ActionCapFrequency:
		if !hasNumericParam(r.ActionParams, "max_impressions") {
			return fmt.Errorf("%w: cap_frequency requires numeric action_params.max_impressions", ErrInvalidRule)
		}
	}
	return nil
}

// hasNumericParam reports whether params carries a numeric value under key.
// JSON decoding yields float64; programmatic callers may pass ints.
func hasNumericParam(params map[string]any, key string) bool {
	switch params[key].(type) {
	case float64, int, json.Number:
		return true
	}
	return false
}

// Decision is the immutable record of one fired rule. Decisions are
// appended to history and never mutated.
type Decision struct {
	ID             string         `json:"id"`
	RuleID         string         `json:"rule_id"`
	TargetEntityID string         `json:"target_entity_id"`
	Action         Action         `json:"action"`
	ActionParams   map[string]any `json:"action_params,omitempty"`
	MetricValue    float64        `json:"metric_value"`
	Confidence     float64        `json:"confidence"`
	DecidedAt      time.Time      `json:"decided_at"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
}

// Outcome is the terminal state of one rule-entity evaluation.
type Outcome string

const (
	OutcomeDecided Outcome = "decided"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)
