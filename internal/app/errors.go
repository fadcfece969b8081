package service

import "errors"

var (
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrAlreadyEvaluating  = errors.New("submission is already being evaluated")
	ErrTerminalSubmission = errors.New("submission already evaluated")
	ErrBackpressure       = errors.New("evaluation capacity exhausted")
	ErrStopped            = errors.New("service stopped")
)
