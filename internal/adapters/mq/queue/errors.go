package queue

import "errors"

// Sentinel kinds for transport log errors.
var (
	ErrClosed           = errors.New("queue closed")
	ErrInvalidPartition = errors.New("invalid partition")
	ErrInvalidOffset    = errors.New("invalid offset")
)
