// Package grader defines the contract of the external grading engine and
// ships adapters for it.
package grader

import (
	"context"

	"github.com/okian/arenagrade/internal/domain/model"
)

// Grader starts evaluations of submission content against a problem.
type Grader interface {
	// Evaluate opens a fresh event stream for one evaluation.
	Evaluate(ctx context.Context, problemPath string, content model.Content) (Stream, error)
}

// Stream yields evaluation payloads in emission order.
type Stream interface {
	// Next returns the next payload. It returns io.EOF once the grader has
	// finished cleanly; any other error means the evaluation failed.
	Next(ctx context.Context) (model.Payload, error)
	// Close releases the stream. It is safe to call more than once.
	Close() error
}
