package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Status is the evaluation lifecycle state of a submission.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusEvaluating Status = "EVALUATING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// ParseStatus reads a stored status discriminant.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusQueued, StatusEvaluating, StatusSuccess, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// A queued submission may fail without ever being evaluated, for instance
// when the process shuts down before a worker picks it up.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusEvaluating || next == StatusFailed
	case StatusEvaluating:
		return next == StatusSuccess || next == StatusFailed
	default:
		return false
	}
}

// File is a named blob of a submission.
type File struct {
	Name    string `json:"name" validate:"required"`
	Content []byte `json:"content"`
}

// FieldValue binds a file to a problem submission field (e.g. "solution").
type FieldValue struct {
	Field string `json:"field" validate:"required"`
	File  File   `json:"file"`
}

// Content is what the grader receives for a submission.
type Content struct {
	Fields []FieldValue
}

// Submission is a materialised snapshot of a contestant submission.
type Submission struct {
	ID          string       `json:"id" validate:"required"`
	UserID      string       `json:"user_id" validate:"required"`
	ProblemName string       `json:"problem_name" validate:"required"`
	CreatedAt   time.Time    `json:"created_at" validate:"required"`
	Status      Status       `json:"status"`
	Error       string       `json:"error,omitempty"`
	Files       []FieldValue `json:"files" validate:"required,min=1,dive"`
}

// NewSubmission returns a queued submission with a fresh id.
func NewSubmission(userID, problemName string, files []FieldValue, now time.Time) Submission {
	return Submission{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProblemName: problemName,
		CreatedAt:   now.UTC(),
		Status:      StatusQueued,
		Files:       files,
	}
}

// Validate checks that the snapshot is complete enough to be graded.
func (s Submission) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	for _, f := range s.Files {
		if f.File.Content == nil {
			return fmt.Errorf("%w: content of %s.%s not loaded", ErrInvalidSubmission, f.Field, f.File.Name)
		}
	}
	return nil
}

// Content returns the grader input of the submission.
func (s Submission) Content() Content {
	fields := make([]FieldValue, len(s.Files))
	copy(fields, s.Files)
	return Content{Fields: fields}
}
