package resolve

import "errors"

// Sentinel kinds for entity resolution.
var (
	// ErrAmbiguousEntity means no deterministic key was present and the
	// match confidence stayed below threshold. Callers defer the episode
	// rather than dropping it.
	ErrAmbiguousEntity = errors.New("ambiguous entity identity")
)
