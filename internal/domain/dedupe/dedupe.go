// Package dedupe guards against evaluating the same submission twice at
// the same time.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard tracks which submissions currently have an evaluation in flight.
type Guard interface {
	// Acquire marks id as in flight. It returns ErrInFlight if id is already
	// held and ErrCapacity if the guard is bounded and full.
	Acquire(ctx context.Context, id string) error

	// Release clears id so it can be acquired again. Releasing an id that
	// is not held is a no-op.
	Release(ctx context.Context, id string)

	// Held reports whether id is in flight.
	Held(id string) bool

	Size() int64
}

type inFlightGuard struct {
	mu      sync.Mutex
	held    map[string]struct{}
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInFlightGuard creates an in-memory guard.
func NewInFlightGuard(opts ...Option) Guard {
	g := &inFlightGuard{
		maxSize: 0,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.held = make(map[string]struct{})
	return g
}

func (g *inFlightGuard) Acquire(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.held[id]; exists {
		return ErrInFlight
	}
	if g.maxSize > 0 && len(g.held) >= g.maxSize {
		return ErrCapacity
	}
	g.held[id] = struct{}{}
	g.size.Add(1)
	return nil
}

func (g *inFlightGuard) Release(ctx context.Context, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.held[id]; exists {
		delete(g.held, id)
		g.size.Add(-1)
	}
}

func (g *inFlightGuard) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[id]
	return ok
}

// Size returns the number of evaluations in flight.
func (g *inFlightGuard) Size() int64 {
	return g.size.Load()
}
