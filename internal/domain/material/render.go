package material

import (
	"encoding/json"
	"strings"

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/scoring"
)

// Values maps feedback keys to the runtime values of one evaluation.
type Values map[Key]json.RawMessage

// ValuesOf collects the value events of an evaluation. Events with an
// unknown or malformed key are skipped; a later value replaces an earlier one.
func ValuesOf(events []model.Event) Values {
	vals := make(Values)
	for _, ev := range events {
		v, ok := ev.Payload.(model.ValueEvent)
		if !ok {
			continue
		}
		key, err := ParseKey(v.Key)
		if err != nil {
			continue
		}
		vals[key] = v.Value
	}
	return vals
}

// RenderedTable is a feedback table with values resolved.
type RenderedTable struct {
	Caption award.Text    `json:"caption"`
	Cols    []Col         `json:"cols"`
	Rows    []RenderedRow `json:"rows"`
}

type RenderedRow struct {
	Cells []RenderedCell `json:"cells"`
}

// RenderedCell carries the value of a cell, or null when none was reported.
type RenderedCell struct {
	Kind      ColKind         `json:"type"`
	AwardName award.Name      `json:"award_name,omitempty"`
	Number    *int            `json:"number,omitempty"`
	Value     json.RawMessage `json:"value"`
	Valence   scoring.Valence `json:"valence,omitempty"`
}

// Render resolves the feedback table of m against an evaluation log.
func Render(m Material, events []model.Event) RenderedTable {
	vals := ValuesOf(events)
	awards := awardValues(events)
	domains := make(map[award.Name]award.Domain, len(m.Awards))
	for _, a := range m.Awards {
		domains[a.Name] = a.Domain
	}

	out := RenderedTable{
		Caption: m.Feedback.Caption,
		Cols:    m.Feedback.Cols,
		Rows:    make([]RenderedRow, 0, len(m.Feedback.Rows)),
	}
	for _, row := range m.Feedback.Rows {
		rr := RenderedRow{Cells: make([]RenderedCell, 0, len(row.Cells))}
		for _, c := range row.Cells {
			rr.Cells = append(rr.Cells, renderCell(c, vals, awards, domains))
		}
		out.Rows = append(out.Rows, rr)
	}
	return out
}

func renderCell(c Cell, vals Values, awards map[award.Name]float64, domains map[award.Name]award.Domain) RenderedCell {
	rc := RenderedCell{Kind: c.Kind()}
	switch cell := c.(type) {
	case AwardReferenceCell:
		rc.AwardName = cell.AwardName
		v, ok := awards[cell.AwardName]
		if !ok {
			return rc
		}
		rc.Value, _ = json.Marshal(v)
		rc.Valence = awardValence(v, domains[cell.AwardName])
	case RowNumberCell:
		n := cell.Number
		rc.Number = &n
	case TimeUsageCell:
		rc.Value = vals[cell.Key]
		rc.Valence = declaredValence(vals, cell.ValenceKey)
		if rc.Valence == "" && cell.PrimaryWatermark != nil {
			if usage, ok := number(rc.Value); ok {
				rc.Valence = scoring.UsageValence(usage, *cell.PrimaryWatermark)
			}
		}
	case MemoryUsageCell:
		rc.Value = vals[cell.Key]
		rc.Valence = declaredValence(vals, cell.ValenceKey)
		if rc.Valence == "" && cell.PrimaryWatermark != nil {
			if usage, ok := number(rc.Value); ok {
				rc.Valence = scoring.UsageValence(usage, float64(*cell.PrimaryWatermark))
			}
		}
	case MessageCell:
		rc.Value = vals[cell.Key]
		rc.Valence = declaredValence(vals, cell.ValenceKey)
	case ScoreCell:
		rc.Value = vals[cell.Key]
		if score, ok := number(rc.Value); ok {
			rc.Valence = scoring.ScoreValence(award.Score(score), cell.Range)
		}
	}
	return rc
}

// awardValues keeps the highest value reported per award.
func awardValues(events []model.Event) map[award.Name]float64 {
	out := make(map[award.Name]float64)
	for _, ev := range events {
		rec, ok := model.AwardOf(ev)
		if !ok {
			continue
		}
		if cur, seen := out[rec.AwardName]; !seen || rec.Value > cur {
			out[rec.AwardName] = rec.Value
		}
	}
	return out
}

func awardValence(v float64, d award.Domain) scoring.Valence {
	switch {
	case d.Kind == award.KindScore && d.Range != nil:
		return scoring.ScoreValence(award.Score(v), *d.Range)
	case d.Kind == award.KindBadge && v == 1:
		return scoring.ValenceSuccess
	case d.Kind == award.KindBadge:
		return scoring.ValenceFailure
	default:
		return ""
	}
}

func declaredValence(vals Values, key *Key) scoring.Valence {
	if key == nil {
		return ""
	}
	raw, ok := vals[*key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return ""
	}
	return scoring.Valence(strings.ToUpper(s))
}

func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
