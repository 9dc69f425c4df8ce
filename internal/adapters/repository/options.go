// Package repository defines the in-memory graph store and its options.
package repository

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithShardCount sets how many shards the entity and fact space is split
// across. More shards raise write parallelism for unrelated entities.
func WithShardCount(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}
