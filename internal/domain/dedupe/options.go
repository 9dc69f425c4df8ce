// Package dedupe defines the interface for episode idempotency tracking.
package dedupe

// Option applies a configuration option to the memory index.
type Option func(*memoryIndex)

// WithMaxSize sets the maximum number of episode IDs to keep in memory.
// If maxSize > 0: bounded mode with oldest-first eviction.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(d *memoryIndex) {
		d.maxSize = maxSize
	}
}
