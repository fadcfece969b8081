// Package scoring holds the pure rules that aggregate award records into
// per-user summaries and classify runtime values.
package scoring

import (
	"sort"
	"time"

	"github.com/okian/arenagrade/internal/domain/award"
)

// warningRatio is the share of a limit above which usage is a warning.
const warningRatio = 0.2

// Candidate is an award record together with the creation time of the
// submission it belongs to.
type Candidate struct {
	AwardName    award.Name
	Value        float64
	SubmissionID string
	CreatedAt    time.Time
}

// Better reports whether a should represent an award instead of b: higher
// value first, then the more recent submission, then the greater submission
// id so the choice is total.
func Better(a, b Candidate) bool {
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.SubmissionID > b.SubmissionID
}

// Best groups candidates by award name and keeps the best of each group.
// The result is sorted by award name.
func Best(cands []Candidate) []award.Best {
	best := make(map[award.Name]Candidate, len(cands))
	for _, c := range cands {
		cur, ok := best[c.AwardName]
		if !ok || Better(c, cur) {
			best[c.AwardName] = c
		}
	}
	out := make([]award.Best, 0, len(best))
	for name, c := range best {
		out = append(out, award.Best{AwardName: name, Value: c.Value, SubmissionID: c.SubmissionID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AwardName < out[j].AwardName })
	return out
}

// Total sums the best values of score awards. When awards is empty every
// best counts; otherwise only bests of declared score awards do.
func Total(awards []award.Award, bests []award.Best) award.Score {
	scored := make(map[award.Name]bool, len(awards))
	for _, a := range awards {
		scored[a.Name] = a.Domain.Kind == award.KindScore
	}
	var total award.Score
	for _, b := range bests {
		if len(awards) > 0 && !scored[b.AwardName] {
			continue
		}
		total += award.Score(b.Value)
	}
	return total
}

// MaxTotal is the highest total reachable with the given awards.
func MaxTotal(awards []award.Award) award.Score {
	var total award.Score
	for _, a := range awards {
		if a.Domain.Kind == award.KindScore && a.Domain.Range != nil {
			total += a.Domain.Range.Max
		}
	}
	return total
}
