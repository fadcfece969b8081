package grader

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/okian/arenagrade/internal/domain/model"
)

// ScriptFunc produces the payloads a scripted evaluation replays.
type ScriptFunc func(problemPath string, content model.Content) ([]model.Payload, error)

// Scripted is a Grader replaying prepared payloads. It is used by tests and
// dry runs.
type Scripted struct {
	script    ScriptFunc
	failAfter int
	failErr   error
	delay     time.Duration
}

// ScriptOption configures a Scripted grader.
type ScriptOption func(*Scripted)

// WithStreamError makes every stream fail with err after n payloads.
func WithStreamError(n int, err error) ScriptOption {
	return func(s *Scripted) {
		s.failAfter = n
		s.failErr = err
	}
}

// WithDelay waits d before each payload.
func WithDelay(d time.Duration) ScriptOption {
	return func(s *Scripted) { s.delay = d }
}

// NewScripted replays the same payloads for every evaluation.
func NewScripted(payloads []model.Payload, opts ...ScriptOption) *Scripted {
	fixed := append([]model.Payload(nil), payloads...)
	return NewScriptedFunc(func(string, model.Content) ([]model.Payload, error) {
		return fixed, nil
	}, opts...)
}

// NewScriptedFunc computes the payloads per evaluation. An error from fn is
// returned by Evaluate as an open failure.
func NewScriptedFunc(fn ScriptFunc, opts ...ScriptOption) *Scripted {
	s := &Scripted{script: fn}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scripted) Evaluate(ctx context.Context, problemPath string, content model.Content) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payloads, err := s.script(problemPath, content)
	if err != nil {
		return nil, err
	}
	return &scriptedStream{payloads: payloads, cfg: s}, nil
}

type scriptedStream struct {
	mu       sync.Mutex
	payloads []model.Payload
	pos      int
	closed   bool
	cfg      *Scripted
}

func (st *scriptedStream) Next(ctx context.Context) (model.Payload, error) {
	if st.cfg.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(st.cfg.delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case st.closed:
		return nil, ErrStreamClose
	case st.cfg.failErr != nil && st.pos >= st.cfg.failAfter:
		return nil, st.cfg.failErr
	case st.pos >= len(st.payloads):
		return nil, io.EOF
	}
	p := st.payloads[st.pos]
	st.pos++
	return p, nil
}

func (st *scriptedStream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	return nil
}
