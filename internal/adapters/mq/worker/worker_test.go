package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/arenagrade/internal/adapters/mq/queue"
	worker "github.com/okian/arenagrade/internal/adapters/mq/worker"
	model "github.com/okian/arenagrade/internal/domain/model"
	logging "github.com/okian/arenagrade/pkg/logger"
)

func init() {
	_ = logging.Init()
}

type mockHandler struct {
	mu        sync.Mutex
	evaluated []string
	abandoned map[string]error
	block     chan struct{}
	fail      map[string]error
}

func newMockHandler() *mockHandler {
	return &mockHandler{abandoned: make(map[string]error), fail: make(map[string]error)}
}

func (h *mockHandler) Evaluate(ctx context.Context, job queue.Job) error {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evaluated = append(h.evaluated, job.Submission.ID)
	return h.fail[job.Submission.ID]
}

func (h *mockHandler) Abandon(ctx context.Context, job queue.Job, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abandoned[job.Submission.ID] = cause
}

func (h *mockHandler) evaluatedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.evaluated)
}

func job(id string) queue.Job {
	return queue.Job{Submission: model.Submission{ID: id}}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker on a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		h := newMockHandler()
		h.fail["bad"] = errors.New("grader crashed")
		w := worker.NewInMemoryWorker(q, h, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()

		convey.Convey("When jobs are queued they are evaluated in order", func() {
			for _, id := range []string{"a", "bad", "b"} {
				convey.So(q.Enqueue(ctx, job(id)), convey.ShouldBeNil)
			}
			convey.So(waitFor(func() bool { return h.evaluatedCount() == 3 }), convey.ShouldBeTrue)
			h.mu.Lock()
			convey.So(h.evaluated, convey.ShouldResemble, []string{"a", "bad", "b"})
			h.mu.Unlock()
		})

		convey.Convey("When the queue closes the worker stops", func() {
			convey.So(q.Close(), convey.ShouldBeNil)
			convey.So(waitFor(func() bool {
				select {
				case <-done:
					return true
				default:
					return false
				}
			}), convey.ShouldBeTrue)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		h := newMockHandler()
		p := worker.NewPool(4, q, h)
		convey.So(p.Size(), convey.ShouldEqual, 4)
		p.Start(context.Background())
		p.Start(context.Background())

		convey.Convey("All queued jobs are evaluated", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(context.Background(), job(fmt.Sprintf("sub-%d", i))), convey.ShouldBeNil)
			}
			convey.So(waitFor(func() bool { return h.evaluatedCount() == 20 }), convey.ShouldBeTrue)
			convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(h.abandoned, convey.ShouldBeEmpty)
		})
	})

	convey.Convey("Given a pool whose workers are busy", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		h := newMockHandler()
		h.block = make(chan struct{})
		p := worker.NewPool(1, q, h)
		p.Start(context.Background())

		convey.So(q.Enqueue(context.Background(), job("running")), convey.ShouldBeNil)
		convey.So(waitFor(func() bool { return q.Len(context.Background()) == 0 }), convey.ShouldBeTrue)
		convey.So(q.Enqueue(context.Background(), job("waiting-1")), convey.ShouldBeNil)
		convey.So(q.Enqueue(context.Background(), job("waiting-2")), convey.ShouldBeNil)

		convey.Convey("Shutdown cancels the running unit and abandons the rest", func() {
			convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(h.evaluatedCount(), convey.ShouldEqual, 0)
			convey.So(h.abandoned, convey.ShouldHaveLength, 2)
			convey.So(errors.Is(h.abandoned["waiting-1"], worker.ErrShutdown), convey.ShouldBeTrue)
			convey.So(q.Enqueue(context.Background(), job("late")), convey.ShouldEqual, queue.ErrClosed)
		})
	})
}
