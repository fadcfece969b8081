package service

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/okian/arenagrade/internal/domain/material"
	"github.com/okian/arenagrade/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of evaluation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many evaluations may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the number of evaluations in flight. Zero means
// unbounded.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithSubmitRate limits accepted evaluations per second. A non-positive
// rate disables the limit.
func WithSubmitRate(perSecond float64, burst int) Option {
	return func(s *Service) {
		if perSecond <= 0 {
			s.submitRate = rate.Inf
		} else {
			s.submitRate = rate.Limit(perSecond)
		}
		if burst > 0 {
			s.submitBurst = burst
		}
	}
}

// WithProblemsDir sets the directory holding one sub-directory per problem.
func WithProblemsDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.problemsDir = dir
		}
	}
}

// WithMaterialOptions sets the generator options used for feedback material.
func WithMaterialOptions(opts ...material.Option) Option {
	return func(s *Service) { s.materialOpts = append(s.materialOpts, opts...) }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for evaluation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock sets the time source for submission and enqueue timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
