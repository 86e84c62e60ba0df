package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue implementation backed by a buffered channel.
// Items with a future NotBefore are held back on a timer and surface on the
// channel once due. It is safe for concurrent use.
type InMemoryQueue struct {
	ch   chan Item
	done chan struct{}

	closeOnce sync.Once

	mu      sync.Mutex
	delayed int
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine;
// delayed items that come due against a full channel wait for a consumer
// (or Close) before surfacing.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch:   make(chan Item, capacity),
		done: make(chan struct{}),
	}
}

// Close releases the timer goroutines of delayed items that have not
// surfaced yet; their items are dropped. Call it once the queue has no
// consumers left. Close is idempotent.
func (q *InMemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, it Item) error {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}

	if delay := time.Until(it.NotBefore); delay > 0 {
		q.mu.Lock()
		q.delayed++
		q.mu.Unlock()

		time.AfterFunc(delay, func() {
			select {
			case q.ch <- it:
			case <-q.done:
			}
			q.mu.Lock()
			q.delayed--
			q.mu.Unlock()
		})
		return nil
	}

	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Item, error) {
	select {
	case it := <-q.ch:
		return &it, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + q.delayed
}
