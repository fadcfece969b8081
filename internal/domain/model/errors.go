package model

import "errors"

// Sentinel errors for domain models.
var (
	ErrUnknownPayload    = errors.New("unknown event payload")
	ErrMalformedPayload  = errors.New("malformed event payload")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrUnknownStatus     = errors.New("unknown submission status")
)
