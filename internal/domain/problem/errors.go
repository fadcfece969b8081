package problem

import "errors"

var (
	ErrNotFound          = errors.New("problem not found")
	ErrInvalidDefinition = errors.New("invalid problem definition")
)
