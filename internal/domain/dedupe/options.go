package dedupe

// Option applies a configuration option to the in-flight guard.
type Option func(*inFlightGuard)

// WithMaxSize bounds the number of evaluations held at once.
// If maxSize <= 0 the guard is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(g *inFlightGuard) {
		g.maxSize = maxSize
	}
}
