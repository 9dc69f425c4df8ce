package event

import "errors"

// Sentinel kinds for normalization errors.
var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrMissingTimestamp = errors.New("missing event timestamp")
	ErrDuplicateEpisode = errors.New("duplicate episode")
)
