// Package queue models the partitioned transport log feeding ingestion.
//
// Messages are appended per partition with monotonically increasing
// offsets and stay eligible for redelivery until their offset is
// committed, which is what gives the pipeline at-least-once semantics.
package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity   = 100000
	defaultPartitions = 4
)

// Message is the record type flowing through the log.
type Message = event.RawMessage

// Queue is the transport log boundary: keyed append, per-partition ordered
// fetch, and offset commit.
type Queue interface {
	// Enqueue appends a message to the partition chosen by key hash.
	// Returns false when the queue is full or closed.
	Enqueue(ctx context.Context, topic, key string, value []byte) bool

	// Fetch blocks until the next undelivered message of the partition is
	// available, the queue closes, or ctx is cancelled.
	Fetch(ctx context.Context, partition int) (Message, error)

	// Commit acknowledges every offset of the partition up to and
	// including offset, releasing those messages for good.
	Commit(ctx context.Context, partition int, offset int64) error

	// Rewind moves the partition's delivery cursor back to the first
	// uncommitted offset, so unacknowledged messages are redelivered.
	Rewind(partition int)

	// Partitions returns the fixed partition count.
	Partitions() int

	// Len returns the number of uncommitted messages across partitions.
	Len(ctx context.Context) int

	// Close stops the queue. Blocked Fetch calls return ErrClosed.
	Close() error

	// IsClosed reports whether the queue has been closed.
	IsClosed() bool
}

// partitionLog is one partition's ordered, offset-addressed buffer.
// entries[0] always holds offset base; committed and cursor are absolute
// offsets.
type partitionLog struct {
	mu        sync.Mutex
	entries   []Message
	base      int64
	next      int64 // offset assigned to the next append
	cursor    int64 // next offset to deliver
	committed int64 // first uncommitted offset
	notify    chan struct{}
}

// InMemoryQueue implements Queue with per-partition in-memory logs.
type InMemoryQueue struct {
	partitions []*partitionLog
	capacity   int // per partition
	count      int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		count:    defaultPartitions,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.partitions = make([]*partitionLog, q.count)
	for i := range q.partitions {
		q.partitions[i] = &partitionLog{notify: make(chan struct{}, 1)}
	}

	metrics.UpdateQueueCapacity(q.capacity * q.count)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// partitionFor keeps all messages of one key in one partition, preserving
// their relative order.
func (q *InMemoryQueue) partitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % q.count
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, topic, key string, value []byte) bool {
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	idx := q.partitionFor(key)
	p := q.partitions[idx]

	p.mu.Lock()
	if len(p.entries) >= q.capacity {
		p.mu.Unlock()
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	msg := Message{
		Topic:     topic,
		Partition: idx,
		Offset:    p.next,
		Value:     value,
	}
	p.entries = append(p.entries, msg)
	p.next++
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}

	metrics.RecordQueueEnqueue()
	q.publishSizeMetrics()
	return true
}

// Fetch implements Queue.
func (q *InMemoryQueue) Fetch(ctx context.Context, partition int) (Message, error) {
	if partition < 0 || partition >= q.count {
		return Message{}, fmt.Errorf("partition %d: %w", partition, ErrInvalidPartition)
	}
	p := q.partitions[partition]

	for {
		if q.IsClosed() {
			return Message{}, ErrClosed
		}

		p.mu.Lock()
		if p.cursor < p.next {
			msg := p.entries[p.cursor-p.base]
			p.cursor++
			p.mu.Unlock()
			metrics.RecordQueueDequeue()
			q.publishSizeMetrics()
			return msg, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, fmt.Errorf("fetch: %w", ctx.Err())
		case <-p.notify:
		}
	}
}

// Commit implements Queue.
func (q *InMemoryQueue) Commit(ctx context.Context, partition int, offset int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if partition < 0 || partition >= q.count {
		return fmt.Errorf("partition %d: %w", partition, ErrInvalidPartition)
	}
	p := q.partitions[partition]

	p.mu.Lock()
	defer p.mu.Unlock()

	if offset < p.committed || offset >= p.next {
		return fmt.Errorf("offset %d outside (%d, %d): %w", offset, p.committed, p.next, ErrInvalidOffset)
	}

	p.committed = offset + 1
	// Drop acknowledged entries.
	drop := p.committed - p.base
	p.entries = p.entries[drop:]
	p.base = p.committed
	if p.cursor < p.committed {
		p.cursor = p.committed
	}

	metrics.RecordOffsetCommit(fmt.Sprintf("%d", partition))
	return nil
}

// Rewind implements Queue.
func (q *InMemoryQueue) Rewind(partition int) {
	if partition < 0 || partition >= q.count {
		return
	}
	p := q.partitions[partition]

	p.mu.Lock()
	p.cursor = p.committed
	p.mu.Unlock()

	// The notify channel is closed by Close; only send while the read
	// lock guarantees the queue is still open.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Partitions implements Queue.
func (q *InMemoryQueue) Partitions() int {
	return q.count
}

// Len implements Queue.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	total := 0
	for _, p := range q.partitions {
		p.mu.Lock()
		total += len(p.entries)
		p.mu.Unlock()
	}
	return total
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	// Wake all blocked fetchers. Closing under the write lock excludes
	// the guarded notify sends in Enqueue and Rewind.
	for _, p := range q.partitions {
		close(p.notify)
	}
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishSizeMetrics() {
	size := 0
	for _, p := range q.partitions {
		p.mu.Lock()
		size += len(p.entries)
		p.mu.Unlock()
	}
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity*q.count))
}
