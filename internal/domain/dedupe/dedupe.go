// Package dedupe provides the episode idempotency index that guarantees
// re-ingesting an already-processed episode_id is a no-op.
package dedupe

import (
	"context"
	"container/list"
	"sync"
	"sync/atomic"
)

// Index records seen episode IDs so at-least-once transport delivery never
// applies the same episode twice.
type Index interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen set, allowing it to be retried.
	// Used when an episode was recorded but graph mutation failed, so the
	// transport redelivery path can reprocess it (commit-after-apply).
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// memoryIndex implements Index with a bounded FIFO eviction window.
// Bounded mode (maxSize > 0) evicts the oldest recorded IDs once full;
// unbounded mode (maxSize <= 0) keeps every ID.
type memoryIndex struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest recorded ID
	maxSize int
	size    atomic.Int64
}

// NewMemoryIndex creates an in-memory idempotency index.
func NewMemoryIndex(opts ...Option) Index {
	d := &memoryIndex{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *memoryIndex) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		// Evict the oldest ID. Evicting from the idempotency window means a
		// very late replay of that ID would reprocess; the graph mutator's
		// idempotent upserts make that harmless.
		oldest := d.order.Front()
		if oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
			d.size.Add(-1)
		}
	}

	d.seen[id] = d.order.PushBack(id)
	d.size.Add(1)
	return false
}

func (d *memoryIndex) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.order.Remove(elem)
		d.size.Add(-1)
	}
}

// Size returns the current number of recorded IDs.
func (d *memoryIndex) Size() int64 {
	return d.size.Load()
}
