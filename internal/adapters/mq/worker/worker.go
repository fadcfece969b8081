// Package worker runs scheduled evaluations on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/arenagrade/internal/adapters/mq/queue"
	"github.com/okian/arenagrade/pkg/logger"
	"github.com/okian/arenagrade/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Handler runs evaluation units.
type Handler interface {
	// Evaluate runs one job to completion. It owns the terminal status of
	// the submission; the returned error is only logged.
	Evaluate(ctx context.Context, job queue.Job) error
	// Abandon is called for jobs that never started because the pool shut
	// down first.
	Abandon(ctx context.Context, job queue.Job, cause error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs from a queue.
type Worker interface {
	// Run consumes jobs until ctx is canceled or the queue is closed.
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string
	logger  logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		handler: h,
		name:    "worker",
		logger:  logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				w.handler.Abandon(context.WithoutCancel(ctx), job, ErrShutdown)
				return
			}
			if err := w.handler.Evaluate(ctx, job); err != nil {
				w.logger.Warn(ctx, "evaluation failed",
					logger.String("submission_id", job.Submission.ID),
					logger.Error(err),
				)
			}
		}
	}
}

// Pool manages a fixed set of workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   queue.Queue
	handler Handler
	logger  logger.Logger

	mu     sync.Mutex
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewPool creates a pool of workerCount workers. A non-positive count uses
// one worker per CPU.
func NewPool(workerCount int, q queue.Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		handler: h,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, h, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches all workers. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	for _, w := range p.workers {
		p.group.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, cancels running units and waits for the
// workers. Jobs left in the queue are handed to Handler.Abandon.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	p.mu.Lock()
	group, cancel := p.group, p.cancel
	p.mu.Unlock()

	if group != nil {
		cancel()
		done := make(chan struct{})
		go func() {
			_ = group.Wait()
			close(done)
		}()

		waitCtx, stop := context.WithTimeout(ctx, poolShutdownTimeout)
		defer stop()
		select {
		case <-done:
		case <-waitCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out")
			return fmt.Errorf("worker shutdown: %w", waitCtx.Err())
		}
	}

	left := p.queue.Drain()
	for _, job := range left {
		p.handler.Abandon(context.WithoutCancel(ctx), job, ErrShutdown)
	}
	if len(left) > 0 {
		p.logger.Warn(ctx, "abandoned queued evaluations", logger.Int("count", len(left)))
	}
	return nil
}
