package dedupe

import "errors"

var (
	ErrInFlight = errors.New("evaluation already in flight")
	ErrCapacity = errors.New("in-flight guard at capacity")
)
