package material

const (
	defaultPrecision    = 0
	defaultAllowPartial = true
	defaultUsageMargin  = 2.0
	defaultTimeLimit    = 5.0  // seconds
	defaultMemoryLimit  = 1024 // MiB
)

// Option configures the generator.
type Option func(*generator)

// WithScorePrecision sets the precision of subtask awards that do not
// declare their own.
func WithScorePrecision(p int) Option {
	return func(g *generator) {
		if p >= 0 {
			g.precision = p
		}
	}
}

// WithAllowPartial sets whether subtask awards accept partial scores unless
// the subtask says otherwise.
func WithAllowPartial(allow bool) Option {
	return func(g *generator) { g.allowPartial = allow }
}

// WithUsageMargin sets the multiple of the limit shown as the usage bound.
func WithUsageMargin(m float64) Option {
	return func(g *generator) {
		if m > 0 {
			g.margin = m
		}
	}
}

// WithDefaultLimits sets the limits assumed when a problem declares none.
func WithDefaultLimits(seconds float64, mebibytes int) Option {
	return func(g *generator) {
		if seconds > 0 {
			g.timeLimit = seconds
		}
		if mebibytes > 0 {
			g.memoryLimit = mebibytes
		}
	}
}
