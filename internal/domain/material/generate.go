package material

import (
	"fmt"
	"sort"

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/problem"
)

const mebibyte = 1024 * 1024

// testcaseRange is the range of a single testcase score.
var testcaseRange = award.ScoreRange{Precision: 2, Max: 1, AllowPartial: true}

type generator struct {
	precision    int
	allowPartial bool
	margin       float64
	timeLimit    float64
	memoryLimit  int
}

// Generate builds the material of a problem. The output depends only on def
// and the options.
func Generate(def problem.Definition, opts ...Option) Material {
	g := &generator{
		precision:    defaultPrecision,
		allowPartial: defaultAllowPartial,
		margin:       defaultUsageMargin,
		timeLimit:    defaultTimeLimit,
		memoryLimit:  defaultMemoryLimit,
	}
	for _, opt := range opts {
		opt(g)
	}

	subtasks := sortedSubtasks(def.Subtasks)
	m := Material{
		Title:  award.Plain(def.Title).WithShort(def.Name),
		Awards: make([]award.Award, 0, len(subtasks)),
		Feedback: Table{
			Caption: award.Plain("Test case results"),
			Cols:    columns(),
			Rows:    []Row{},
		},
	}
	for _, st := range subtasks {
		a := g.awardOf(st)
		m.Awards = append(m.Awards, a)
		for _, tc := range st.Testcases {
			m.Feedback.Rows = append(m.Feedback.Rows, g.rowOf(def, a.Name, tc))
		}
	}
	return m
}

// AwardName returns the award name generated for a subtask.
func AwardName(st problem.Subtask) award.Name {
	if st.MaxScore > 0 {
		return award.Name(fmt.Sprintf("subtask.%d.score", st.ID))
	}
	return award.Name(fmt.Sprintf("subtask.%d.badge", st.ID))
}

func sortedSubtasks(in []problem.Subtask) []problem.Subtask {
	out := make([]problem.Subtask, len(in))
	for i, st := range in {
		st.Testcases = append([]int(nil), st.Testcases...)
		sort.Ints(st.Testcases)
		out[i] = st
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *generator) awardOf(st problem.Subtask) award.Award {
	a := award.Award{
		Name:  AwardName(st),
		Title: award.Plain(fmt.Sprintf("Subtask %d", st.ID)).WithShort(fmt.Sprintf("ST %d", st.ID)),
	}
	if st.MaxScore <= 0 {
		a.Domain = award.BadgeDomain()
		return a
	}
	r := award.ScoreRange{Precision: g.precision, Max: award.Score(st.MaxScore), AllowPartial: g.allowPartial}
	if st.Precision != nil {
		r.Precision = *st.Precision
	}
	if st.AllowPartial != nil {
		r.AllowPartial = *st.AllowPartial
	}
	a.Domain = award.ScoreDomain(r)
	return a
}

func columns() []Col {
	scoreRange := testcaseRange
	return []Col{
		{Title: award.Plain("Subtask"), Kind: KindAwardReference},
		{Title: award.Plain("Case"), Kind: KindRowNumber},
		{Title: award.Plain("Time usage"), Kind: KindTimeUsage},
		{Title: award.Plain("Memory usage"), Kind: KindMemoryUsage},
		{Title: award.Plain("Message"), Kind: KindMessage},
		{Title: award.Plain("Score"), Kind: KindScore, Range: &scoreRange},
	}
}

func (g *generator) rowOf(def problem.Definition, awardName award.Name, tc int) Row {
	timeLimit := g.timeLimit
	var timeMark *float64
	if def.TimeLimit != nil {
		timeLimit = *def.TimeLimit
		mark := *def.TimeLimit
		timeMark = &mark
	}

	memoryLimit := int64(g.memoryLimit) * mebibyte
	var memoryMark *int64
	if def.MemoryLimit != nil {
		memoryLimit = int64(*def.MemoryLimit) * mebibyte
		mark := memoryLimit
		memoryMark = &mark
	}

	timeValence := KeyOf(tc, FieldTimeUsageValence)
	memoryValence := KeyOf(tc, FieldMemoryUsageValence)
	messageValence := KeyOf(tc, FieldValence)
	return Row{Cells: []Cell{
		AwardReferenceCell{AwardName: awardName},
		RowNumberCell{Number: tc},
		TimeUsageCell{
			Key:              KeyOf(tc, FieldTimeUsage),
			ValenceKey:       &timeValence,
			MaxRelevant:      g.margin * timeLimit,
			PrimaryWatermark: timeMark,
		},
		MemoryUsageCell{
			Key:              KeyOf(tc, FieldMemoryUsage),
			ValenceKey:       &memoryValence,
			MaxRelevant:      int64(g.margin * float64(memoryLimit)),
			PrimaryWatermark: memoryMark,
		},
		MessageCell{Key: KeyOf(tc, FieldMessage), ValenceKey: &messageValence},
		ScoreCell{Key: KeyOf(tc, FieldScore), Range: testcaseRange},
	}}
}
