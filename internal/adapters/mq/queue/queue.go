// Package queue holds evaluation jobs between intake and the worker pool.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Job is one scheduled evaluation.
type Job struct {
	Submission  model.Submission
	ProblemPath string
	EnqueuedAt  time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It returns ErrClosed after Close and ErrFull when
	// the queue is at capacity; it never blocks.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns a channel that yields jobs in FIFO order. The channel
	// is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops intake. Jobs already queued stay readable.
	Close() error

	// Drain returns the jobs still queued after Close.
	Drain() []Job

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}

	select {
	case q.jobs <- j:
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	default:
		return ErrFull
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	return q.jobs
}

func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

func (q *InMemoryQueue) Cap() int { return q.capacity }

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// Drain empties a closed queue. On an open queue it returns nil so that it
// never competes with workers for new jobs.
func (q *InMemoryQueue) Drain() []Job {
	if !q.IsClosed() {
		return nil
	}
	var left []Job
	for j := range q.jobs {
		left = append(left, j)
	}
	metrics.UpdateQueueSize(0)
	return left
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
