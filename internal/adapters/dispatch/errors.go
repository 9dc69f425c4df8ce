package dispatch

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrDispatchFailed      = errors.New("dispatch failed")
	ErrUnsupportedAction   = errors.New("unsupported action")
	ErrPublisherFull       = errors.New("publisher refused message")
	ErrMissingActionParams = errors.New("missing action params")
)
