package award

import "errors"

// Sentinel errors for award values.
var (
	ErrUnknownKind  = errors.New("unknown award kind")
	ErrMissingRange = errors.New("score domain without range")
)
