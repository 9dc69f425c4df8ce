package community

import "errors"

// Sentinel kinds for community detection.
var (
	// ErrDetectionTimeout means propagation did not converge within the
	// iteration budget. The previous assignment stays valid.
	ErrDetectionTimeout = errors.New("community detection timed out")
)
