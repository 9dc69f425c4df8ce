package rules

import "errors"

// Sentinel kinds for rule evaluation.
var (
	ErrInvalidRule         = errors.New("invalid rule")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrInsufficientSamples = errors.New("insufficient samples in window")
	ErrUnknownMetric       = errors.New("unknown metric")
)
