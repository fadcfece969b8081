package service_test

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arenagrade/internal/adapters/grader"
	"github.com/okian/arenagrade/internal/adapters/mq/worker"
	"github.com/okian/arenagrade/internal/adapters/repository"
	service "github.com/okian/arenagrade/internal/app"
	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func files() []model.FieldValue {
	return []model.FieldValue{{Field: "solution", File: model.File{Name: "main.py", Content: []byte("print(1)")}}}
}

var threeEvents = []model.Payload{
	model.ScoreEvent{AwardName: "subtask.1.score", Score: 30},
	model.ValueEvent{Key: "testcase.1.message", Value: []byte(`"ok"`)},
	model.BadgeEvent{AwardName: "subtask.2.badge", Badge: true},
}

// cancelAtEOF ends every stream cleanly after cancelling the worker context.
type cancelAtEOF struct{ cancel context.CancelFunc }

func (g cancelAtEOF) Evaluate(context.Context, string, model.Content) (grader.Stream, error) {
	return g, nil
}

func (g cancelAtEOF) Next(context.Context) (model.Payload, error) {
	g.cancel()
	return nil, io.EOF
}

func (cancelAtEOF) Close() error { return nil }

// strictStore refuses status writes on a cancelled context, as a SQL store does.
type strictStore struct{ repository.Store }

func (s strictStore) SetStatus(ctx context.Context, id string, status model.Status, cause string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.SetStatus(ctx, id, status, cause)
}

func waitStatus(store repository.Store, id string, want model.Status) model.Submission {
	deadline := time.Now().Add(5 * time.Second)
	for {
		sub, err := store.Submission(context.Background(), id)
		if err == nil && sub.Status == want {
			return sub
		}
		if time.Now().After(deadline) {
			return sub
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with a scripted grader", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, grader.NewScripted(threeEvents), service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("A submission is evaluated to SUCCESS with its log and awards", func() {
			sub, err := svc.Submit(ctx, "alice", "sum", files())
			So(err, ShouldBeNil)
			So(sub.Status, ShouldEqual, model.StatusQueued)

			got := waitStatus(store, sub.ID, model.StatusSuccess)
			So(got.Status, ShouldEqual, model.StatusSuccess)
			So(got.Error, ShouldBeEmpty)

			events, err := svc.Events(ctx, sub.ID)
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 3)
			for i, ev := range events {
				So(ev.Serial, ShouldEqual, i)
				So(ev.Payload, ShouldResemble, threeEvents[i])
			}

			scores, err := svc.Awards(ctx, award.KindScore, sub.ID)
			So(err, ShouldBeNil)
			So(scores, ShouldResemble, []award.Record{{Kind: award.KindScore, SubmissionID: sub.ID, AwardName: "subtask.1.score", Value: 30}})
			badges, err := svc.Awards(ctx, award.KindBadge, sub.ID)
			So(err, ShouldBeNil)
			So(badges, ShouldHaveLength, 1)
			So(badges[0].Value, ShouldEqual, 1.0)

			bests, err := svc.BestAwards(ctx, award.KindScore, "alice", "sum")
			So(err, ShouldBeNil)
			So(bests, ShouldResemble, []award.Best{{AwardName: "subtask.1.score", Value: 30, SubmissionID: sub.ID}})

			Convey("And a finished submission cannot be evaluated again", func() {
				err := svc.Reschedule(ctx, sub.ID)
				So(errors.Is(err, service.ErrTerminalSubmission), ShouldBeTrue)
			})

			Convey("And its view hides file contents", func() {
				view, err := svc.Submission(ctx, sub.ID)
				So(err, ShouldBeNil)
				So(view.Files, ShouldHaveLength, 1)
				So(view.Files[0].Size, ShouldEqual, len("print(1)"))
			})
		})

		Convey("Stats report the running pool", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["worker_count"], ShouldEqual, 2)
		})
	})
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, grader.NewScripted(nil))

		Convey("A submission without files is rejected and nothing is stored", func() {
			_, err := svc.Submit(ctx, "alice", "sum", nil)
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)
			n, _ := store.Count(ctx)
			So(n, ShouldEqual, 0)
		})

		Convey("A problem name escaping the problems directory is rejected", func() {
			_, err := svc.Submit(ctx, "alice", "../etc", files())
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)
		})

		Convey("A snapshot whose contents are not loaded is rejected", func() {
			sub := model.NewSubmission("alice", "sum", []model.FieldValue{{Field: "solution", File: model.File{Name: "a.c"}}}, time.Now())
			err := svc.Evaluate(ctx, "problems/sum", sub)
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)
		})

		Convey("An unknown submission cannot be scheduled", func() {
			sub := model.NewSubmission("alice", "sum", files(), time.Now())
			err := svc.Evaluate(ctx, "problems/sum", sub)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Failures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a grader failing mid-stream", t, func() {
		store := repository.NewMemoryStore()
		g := grader.NewScripted(threeEvents, grader.WithStreamError(2, errors.New("sandbox crashed")))
		svc := service.New(store, g, service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sub, err := svc.Submit(ctx, "bob", "sum", files())
		So(err, ShouldBeNil)

		Convey("The submission ends FAILED with the cause and keeps the events already written", func() {
			got := waitStatus(store, sub.ID, model.StatusFailed)
			So(got.Status, ShouldEqual, model.StatusFailed)
			So(got.Error, ShouldContainSubstring, "sandbox crashed")
			events, _ := svc.Events(ctx, sub.ID)
			So(events, ShouldHaveLength, 2)
		})
	})

	Convey("Given a grader that cannot open the evaluation", t, func() {
		store := repository.NewMemoryStore()
		g := grader.NewScriptedFunc(func(string, model.Content) ([]model.Payload, error) {
			return nil, errors.New("problem archive missing")
		})
		svc := service.New(store, g, service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sub, err := svc.Submit(ctx, "bob", "sum", files())
		So(err, ShouldBeNil)
		got := waitStatus(store, sub.ID, model.StatusFailed)
		So(got.Error, ShouldContainSubstring, "problem archive missing")
	})

	Convey("Given a process grader printing an oversized line", t, func() {
		if _, err := exec.LookPath("sh"); err != nil {
			t.Skip("sh not available")
		}
		store := repository.NewMemoryStore()
		g := grader.NewProcess("sh",
			grader.WithArgs("-c", `head -c 2097152 /dev/zero | tr '\0' a; echo`, "grader"),
			grader.WithTempDir(t.TempDir()))
		svc := service.New(store, g, service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sub, err := svc.Submit(ctx, "bob", "sum", files())
		So(err, ShouldBeNil)
		got := waitStatus(store, sub.ID, model.StatusFailed)
		So(got.Status, ShouldEqual, model.StatusFailed)
		So(got.Error, ShouldContainSubstring, "token too long")
	})

	Convey("Given a worker cancelled right after the stream ends", t, func() {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		store := strictStore{repository.NewMemoryStore()}
		svc := service.New(store, cancelAtEOF{cancel: cancel}, service.WithWorkerCount(1))
		So(svc.Start(runCtx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		sub, err := svc.Submit(ctx, "bob", "sum", files())
		So(err, ShouldBeNil)

		Convey("The finished evaluation is still recorded as SUCCESS", func() {
			got := waitStatus(store, sub.ID, model.StatusSuccess)
			So(got.Status, ShouldEqual, model.StatusSuccess)
			So(got.Error, ShouldBeEmpty)
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service whose workers are not running yet", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, grader.NewScripted(threeEvents), service.WithQueueSize(1), service.WithWorkerCount(1))

		first, err := svc.Submit(ctx, "alice", "sum", files())
		So(err, ShouldBeNil)

		Convey("A second evaluation of a queued submission is rejected", func() {
			err := svc.Evaluate(ctx, svc.ProblemPath("sum"), first)
			So(errors.Is(err, service.ErrAlreadyEvaluating), ShouldBeTrue)
		})

		Convey("A full queue rejects with backpressure and releases the guard", func() {
			second, err := svc.Submit(ctx, "alice", "sum", files())
			So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
			So(second.ID, ShouldNotBeEmpty)

			stored, err := store.Submission(ctx, second.ID)
			So(err, ShouldBeNil)
			So(stored.Status, ShouldEqual, model.StatusQueued)

			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()
			waitStatus(store, first.ID, model.StatusSuccess)

			So(svc.Reschedule(ctx, second.ID), ShouldBeNil)
			So(waitStatus(store, second.ID, model.StatusSuccess).Status, ShouldEqual, model.StatusSuccess)
		})
	})

	Convey("Given a service with a tight submit rate", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, grader.NewScripted(nil), service.WithSubmitRate(0.001, 1))

		_, err := svc.Submit(ctx, "alice", "sum", files())
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, "alice", "sum", files())
		So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
	})
}

func TestService_Stop(t *testing.T) {
	ctx := context.Background()

	Convey("Given queued evaluations that never started", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, grader.NewScripted(threeEvents))
		sub, err := svc.Submit(ctx, "alice", "sum", files())
		So(err, ShouldBeNil)

		Convey("Stopping marks them FAILED and closes intake", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			got, err := store.Submission(ctx, sub.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusFailed)
			So(got.Error, ShouldEqual, worker.ErrShutdown.Error())

			_, err = svc.Submit(ctx, "alice", "sum", files())
			So(errors.Is(err, service.ErrStopped), ShouldBeTrue)
			So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
		})
	})

	Convey("Given an evaluation blocked in the grader", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(store, grader.NewScripted(threeEvents, grader.WithDelay(time.Hour)), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		sub, err := svc.Submit(ctx, "alice", "sum", files())
		So(err, ShouldBeNil)
		waitStatus(store, sub.ID, model.StatusEvaluating)

		Convey("Stopping cancels it and records the interruption", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			got, _ := store.Submission(ctx, sub.ID)
			So(got.Status, ShouldEqual, model.StatusFailed)
			So(strings.Contains(got.Error, context.Canceled.Error()), ShouldBeTrue)
		})
	})
}
