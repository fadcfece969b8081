package scoring

import "github.com/okian/arenagrade/internal/domain/award"

// Valence is the qualitative reading of a value shown to contestants.
type Valence string

const (
	ValenceNominal Valence = "NOMINAL"
	ValenceWarning Valence = "WARNING"
	ValenceFailure Valence = "FAILURE"
	ValenceSuccess Valence = "SUCCESS"
	ValencePartial Valence = "PARTIAL"
	ValenceNeutral Valence = "NEUTRAL"
)

// UsageValence classifies a resource usage against its limit.
// Without a limit (limit <= 0) the usage is neutral.
func UsageValence(usage, limit float64) Valence {
	switch {
	case limit <= 0:
		return ValenceNeutral
	case usage <= warningRatio*limit:
		return ValenceNominal
	case usage <= limit:
		return ValenceWarning
	default:
		return ValenceFailure
	}
}

// ScoreValence classifies a score within its range.
func ScoreValence(score award.Score, r award.ScoreRange) Valence {
	switch {
	case score <= 0:
		return ValenceFailure
	case score < r.Max:
		return ValencePartial
	default:
		return ValenceSuccess
	}
}
