package worker

import "errors"

// ErrShutdown is the cause given to jobs abandoned by a pool shutdown.
var ErrShutdown = errors.New("evaluation interrupted by shutdown")
