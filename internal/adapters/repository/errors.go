package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound          = errors.New("submission not found")
	ErrAlreadyExists     = errors.New("submission already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEvaluating     = errors.New("submission is not being evaluated")
	ErrSerialGap         = errors.New("event serial out of sequence")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
