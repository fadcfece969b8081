// Package service schedules submission evaluations, persists the resulting
// event log and answers award and feedback queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/okian/arenagrade/internal/adapters/grader"
	"github.com/okian/arenagrade/internal/adapters/mq/queue"
	"github.com/okian/arenagrade/internal/adapters/mq/worker"
	"github.com/okian/arenagrade/internal/adapters/repository"
	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/dedupe"
	"github.com/okian/arenagrade/internal/domain/material"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/problem"
	"github.com/okian/arenagrade/internal/domain/scoring"
	"github.com/okian/arenagrade/internal/domain/types"
	"github.com/okian/arenagrade/pkg/logger"
	"github.com/okian/arenagrade/pkg/metrics"
)

const tracerName = "github.com/okian/arenagrade/internal/app"

// Service orchestrates evaluations and exposes the query side of the store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	grader  grader.Grader
	guard   dedupe.Guard
	queue   queue.Queue
	pool    *worker.Pool
	limiter *rate.Limiter

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	submitRate   rate.Limit
	submitBurst  int
	problemsDir  string
	materialOpts []material.Option

	// State
	started bool
	stopped bool

	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New constructs a Service evaluating with g and persisting into store.
func New(store repository.Store, g grader.Grader, opts ...Option) *Service {
	s := &Service{
		store:       store,
		grader:      g,
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		submitRate:  rate.Inf,
		submitBurst: 1,
		problemsDir: "problems",
		logger:      logger.Get().Named("service"),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.guard = dedupe.NewInFlightGuard(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.limiter = rate.NewLimiter(s.submitRate, s.submitBurst)
	s.pool = worker.NewPool(s.workerCount, s.queue, &unit{s: s}, worker.WithLogger(s.logger.Named("worker")))
	return s
}

// Start launches the worker pool. Evaluations accepted before Start wait in
// the queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.pool.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop closes intake, cancels running evaluations and marks every
// interrupted submission FAILED. The store is left open.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.logger.Info(ctx, "stopping evaluation service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "evaluation service stopped")
	return nil
}

// ProblemPath returns the directory of a problem.
func (s *Service) ProblemPath(problemName string) string {
	return filepath.Join(s.problemsDir, problemName)
}

// Submit stores a new submission and schedules its evaluation. A
// submission rejected by backpressure is still returned; it stays QUEUED
// and can be rescheduled.
func (s *Service) Submit(ctx context.Context, userID, problemName string, files []model.FieldValue) (model.Submission, error) {
	if !validProblemName(problemName) {
		return model.Submission{}, fmt.Errorf("%w: bad problem name %q", ErrInvalidSubmission, problemName)
	}
	sub := model.NewSubmission(userID, problemName, files, s.now())
	if err := sub.Validate(); err != nil {
		return model.Submission{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return model.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	updateSubmissionsTotal(ctx, s.store)
	return sub, s.Evaluate(ctx, s.ProblemPath(problemName), sub)
}

// Reschedule evaluates a stored submission that is still QUEUED.
func (s *Service) Reschedule(ctx context.Context, id string) error {
	sub, err := s.store.Submission(ctx, id)
	if err != nil {
		return err
	}
	return s.Evaluate(ctx, s.ProblemPath(sub.ProblemName), sub)
}

// Evaluate schedules the evaluation of sub against the problem at
// problemPath. It returns once the evaluation is queued.
func (s *Service) Evaluate(ctx context.Context, problemPath string, sub model.Submission) error {
	if err := sub.Validate(); err != nil {
		metrics.RecordEvaluationRejected("invalid")
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	if err := s.guard.Acquire(ctx, sub.ID); err != nil {
		if errors.Is(err, dedupe.ErrCapacity) {
			metrics.RecordEvaluationRejected("in_flight_capacity")
			return fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		metrics.RecordEvaluationRejected("in_flight")
		return fmt.Errorf("%w: %s", ErrAlreadyEvaluating, sub.ID)
	}

	if err := s.schedule(ctx, problemPath, sub); err != nil {
		s.guard.Release(ctx, sub.ID)
		return err
	}
	metrics.RecordEvaluationScheduled()
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	s.logger.Debug(ctx, "evaluation scheduled",
		logger.String("submission_id", sub.ID),
		logger.String("problem", problemPath),
	)
	return nil
}

// schedule runs with the in-flight guard held.
func (s *Service) schedule(ctx context.Context, problemPath string, sub model.Submission) error {
	stored, err := s.store.Submission(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	switch {
	case stored.Status == model.StatusEvaluating:
		metrics.RecordEvaluationRejected("in_flight")
		return fmt.Errorf("%w: %s", ErrAlreadyEvaluating, sub.ID)
	case stored.Status.Terminal():
		metrics.RecordEvaluationRejected("terminal")
		return fmt.Errorf("%w: %s is %s", ErrTerminalSubmission, sub.ID, stored.Status)
	}

	if !s.limiter.Allow() {
		metrics.RecordEvaluationRejected("rate")
		return fmt.Errorf("%w: submit rate exceeded", ErrBackpressure)
	}

	err = s.queue.Enqueue(ctx, queue.Job{Submission: sub, ProblemPath: problemPath, EnqueuedAt: s.now()})
	switch {
	case errors.Is(err, queue.ErrFull):
		metrics.RecordEvaluationRejected("queue_full")
		return fmt.Errorf("%w: %w", ErrBackpressure, err)
	case errors.Is(err, queue.ErrClosed):
		metrics.RecordEvaluationRejected("stopped")
		return ErrStopped
	case err != nil:
		return err
	}
	return nil
}

// Submission returns a stored submission without file contents.
func (s *Service) Submission(ctx context.Context, id string) (types.SubmissionView, error) {
	sub, err := s.store.Submission(ctx, id)
	if err != nil {
		return types.SubmissionView{}, err
	}
	return types.ViewOf(sub), nil
}

// Events returns the evaluation log of a submission.
func (s *Service) Events(ctx context.Context, id string) ([]model.Event, error) {
	return s.store.Events(ctx, id)
}

// Awards returns the award records of one kind derived for a submission.
func (s *Service) Awards(ctx context.Context, kind award.Kind, id string) ([]award.Record, error) {
	return s.store.AwardsOfSubmission(ctx, kind, id)
}

// BestAwards returns the best record per award of a user on a problem.
func (s *Service) BestAwards(ctx context.Context, kind award.Kind, userID, problemName string) ([]award.Best, error) {
	return s.store.BestAwards(ctx, kind, userID, problemName)
}

// Material generates the feedback material of a problem.
func (s *Service) Material(ctx context.Context, problemName string) (material.Material, error) {
	if !validProblemName(problemName) {
		return material.Material{}, fmt.Errorf("%w: %q", problem.ErrNotFound, problemName)
	}
	def, err := problem.Load(s.ProblemPath(problemName))
	if err != nil {
		return material.Material{}, err
	}
	return material.Generate(def, s.materialOpts...), nil
}

// Feedback renders the feedback table of a submission from its event log.
func (s *Service) Feedback(ctx context.Context, id string) (material.RenderedTable, error) {
	sub, err := s.store.Submission(ctx, id)
	if err != nil {
		return material.RenderedTable{}, err
	}
	m, err := s.Material(ctx, sub.ProblemName)
	if err != nil {
		return material.RenderedTable{}, err
	}
	events, err := s.store.Events(ctx, id)
	if err != nil {
		return material.RenderedTable{}, err
	}
	return material.Render(m, events), nil
}

// TotalScore sums the best score awards of a user on a problem. When the
// problem definition cannot be loaded every best score award counts and
// the maximum is unknown (zero).
func (s *Service) TotalScore(ctx context.Context, userID, problemName string) (types.ScoreSummary, error) {
	bests, err := s.store.BestAwards(ctx, award.KindScore, userID, problemName)
	if err != nil {
		return types.ScoreSummary{}, err
	}
	var awards []award.Award
	m, err := s.Material(ctx, problemName)
	switch {
	case err == nil:
		awards = m.Awards
	case errors.Is(err, problem.ErrNotFound):
		s.logger.Warn(ctx, "problem definition missing, totalling all awards",
			logger.String("problem", problemName),
		)
	default:
		return types.ScoreSummary{}, err
	}
	return types.ScoreSummary{
		UserID:      userID,
		ProblemName: problemName,
		Score:       scoring.Total(awards, bests),
		MaxScore:    scoring.MaxTotal(awards),
		Awards:      bests,
	}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started && !s.stopped,
		"worker_count":   s.pool.Size(),
		"queue_capacity": s.queue.Cap(),
		"queue_length":   s.queue.Len(ctx),
		"in_flight":      s.guard.Size(),
	}
	if n, err := s.store.Count(ctx); err == nil {
		stats["submissions"] = n
		metrics.UpdateSubmissionsTotal(n)
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	metrics.UpdateQueueCapacity(s.queue.Cap())
	return stats
}

func updateSubmissionsTotal(ctx context.Context, store repository.Store) {
	if n, err := store.Count(ctx); err == nil {
		metrics.UpdateSubmissionsTotal(n)
	}
}

func validProblemName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

// unit is the worker.Handler running one evaluation.
type unit struct {
	s *Service
}

func (u *unit) Evaluate(ctx context.Context, job queue.Job) error {
	s := u.s
	id := job.Submission.ID
	defer s.guard.Release(context.WithoutCancel(ctx), id)

	metrics.IncActiveEvaluations()
	defer metrics.DecActiveEvaluations()
	metrics.UpdateQueueSize(s.queue.Len(ctx))

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "evaluation.run", trace.WithAttributes(
		attribute.String("submission.id", id),
		attribute.String("problem.path", job.ProblemPath),
	))
	defer span.End()

	n, err := u.run(ctx, job)
	span.SetAttributes(attribute.Int("evaluation.events", n))
	if err == nil {
		err = s.store.SetStatus(context.WithoutCancel(ctx), id, model.StatusSuccess, "")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.fail(ctx, job, err)
		metrics.RecordEvaluationFinished(string(model.StatusFailed), time.Since(start).Seconds())
		return err
	}

	metrics.RecordEvaluationFinished(string(model.StatusSuccess), time.Since(start).Seconds())
	s.logger.Info(ctx, "evaluation finished",
		logger.String("submission_id", id),
		logger.Int("events", n),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// run consumes the grader stream and persists every event. It returns the
// number of events written.
func (u *unit) run(ctx context.Context, job queue.Job) (int, error) {
	s := u.s
	id := job.Submission.ID
	if err := s.store.SetStatus(ctx, id, model.StatusEvaluating, ""); err != nil {
		return 0, fmt.Errorf("mark evaluating: %w", err)
	}

	stream, err := s.grader.Evaluate(ctx, job.ProblemPath, job.Submission.Content())
	if err != nil {
		return 0, fmt.Errorf("open grader: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			s.logger.Warn(ctx, "closing grader stream", logger.String("submission_id", id), logger.Error(cerr))
		}
	}()

	for serial := 0; ; serial++ {
		payload, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return serial, nil
		}
		if err != nil {
			return serial, fmt.Errorf("grader stream: %w", err)
		}

		ev := model.Event{SubmissionID: id, Serial: serial, Payload: payload}
		if err := s.store.AppendEvent(ctx, ev); err != nil {
			return serial, fmt.Errorf("persist event %d: %w", serial, err)
		}
		metrics.RecordEventPersisted(payload.Type())
		if rec, ok := model.AwardOf(ev); ok {
			metrics.RecordAwardWritten(rec.Kind.String())
		} else {
			s.logger.Debug(ctx, "event without award",
				logger.String("submission_id", id),
				logger.Int("serial", serial),
				logger.String("type", payload.Type()),
			)
		}
	}
}

// fail records cause on the submission even when ctx is already cancelled.
func (u *unit) fail(ctx context.Context, job queue.Job, cause error) {
	s := u.s
	id := job.Submission.ID
	if err := s.store.SetStatus(context.WithoutCancel(ctx), id, model.StatusFailed, cause.Error()); err != nil {
		s.logger.Error(ctx, "failed to record evaluation failure",
			logger.String("submission_id", id),
			logger.String("cause", cause.Error()),
			logger.Error(err),
		)
		return
	}
	s.logger.Warn(ctx, "evaluation failed",
		logger.String("submission_id", id),
		logger.Error(cause),
	)
}

func (u *unit) Abandon(ctx context.Context, job queue.Job, cause error) {
	defer u.s.guard.Release(ctx, job.Submission.ID)
	u.fail(ctx, job, cause)
	metrics.RecordEvaluationFinished(string(model.StatusFailed), time.Since(job.EnqueuedAt).Seconds())
}
