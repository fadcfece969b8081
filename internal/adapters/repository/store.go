// Package repository persists submissions, their evaluation logs and the
// award records derived from them.
package repository

import (
	"context"
	"time"

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/pkg/metrics"
)

// Store provides read/write access to evaluation state.
type Store interface {
	// CreateSubmission stores a new submission with its files.
	// Returns ErrAlreadyExists if the id is taken.
	CreateSubmission(ctx context.Context, s model.Submission) error

	// Submission returns a stored submission, including file contents.
	// Returns ErrNotFound if the id is unknown.
	Submission(ctx context.Context, id string) (model.Submission, error)

	// SetStatus moves a submission along its lifecycle. cause is kept as
	// the error summary of a FAILED submission. Returns
	// ErrInvalidTransition if the lifecycle forbids the move.
	SetStatus(ctx context.Context, id string, status model.Status, cause string) error

	// AppendEvent writes an event and its derived award record atomically.
	// The submission must be EVALUATING and ev.Serial must be the next
	// serial of its log, otherwise ErrNotEvaluating or ErrSerialGap.
	AppendEvent(ctx context.Context, ev model.Event) error

	// Events returns the log of a submission ordered by serial.
	Events(ctx context.Context, submissionID string) ([]model.Event, error)

	// AwardsOfSubmission returns the records of one kind of a submission
	// in insertion order.
	AwardsOfSubmission(ctx context.Context, kind award.Kind, submissionID string) ([]award.Record, error)

	// BestAwards returns, per award name, the best record of a kind among
	// all submissions of a user on a problem, sorted by award name.
	BestAwards(ctx context.Context, kind award.Kind, userID, problemName string) ([]award.Best, error)

	// Count returns the number of stored submissions.
	Count(ctx context.Context) (int, error)

	Close() error
}

// observe records the latency and outcome of a store operation.
func observe(operation string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	metrics.RecordStoreOperation(operation, float64(time.Since(start).Microseconds())/1000, e)
}
