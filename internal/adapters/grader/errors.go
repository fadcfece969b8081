package grader

import "errors"

var (
	ErrNoCommand     = errors.New("grader command not configured")
	ErrGraderExit    = errors.New("grader exited with failure")
	ErrGraderTimeout = errors.New("grader timed out")
	ErrStreamClose   = errors.New("grader stream closed")
)
