// Package material maps a problem definition to the generic schema used to
// present awards and per-testcase feedback, and fills that schema with the
// values of an evaluation.
package material

import (
	"encoding/json"

	"github.com/okian/arenagrade/internal/domain/award"
)

// Material is everything the presentation layer needs to know about a
// problem before any submission is evaluated.
type Material struct {
	Title    award.Text    `json:"title"`
	Awards   []award.Award `json:"awards"`
	Feedback Table         `json:"feedback"`
}

// Table is a feedback section made of typed columns and cells.
type Table struct {
	Caption award.Text `json:"caption"`
	Cols    []Col      `json:"cols"`
	Rows    []Row      `json:"rows"`
}

// ColKind is the closed set of column and cell kinds.
type ColKind string

const (
	KindAwardReference ColKind = "award_reference"
	KindRowNumber      ColKind = "row_number"
	KindTimeUsage      ColKind = "time_usage"
	KindMemoryUsage    ColKind = "memory_usage"
	KindMessage        ColKind = "message"
	KindScore          ColKind = "score"
)

// Col is a titled column. Range is set for score columns only.
type Col struct {
	Title award.Text        `json:"title"`
	Kind  ColKind           `json:"type"`
	Range *award.ScoreRange `json:"range,omitempty"`
}

// Row holds one cell per column.
type Row struct {
	Cells []Cell `json:"cells"`
}

// Cell is one of AwardReferenceCell, RowNumberCell, TimeUsageCell,
// MemoryUsageCell, MessageCell or ScoreCell.
type Cell interface {
	Kind() ColKind
}

// AwardReferenceCell points at an award of the material.
type AwardReferenceCell struct {
	AwardName award.Name `json:"award_name"`
}

// RowNumberCell shows a static number, the testcase id.
type RowNumberCell struct {
	Number int `json:"number"`
}

// TimeUsageCell shows the time spent on a testcase, in seconds.
type TimeUsageCell struct {
	Key              Key      `json:"key"`
	ValenceKey       *Key     `json:"valence_key,omitempty"`
	MaxRelevant      float64  `json:"max_relevant"`
	PrimaryWatermark *float64 `json:"primary_watermark,omitempty"`
}

// MemoryUsageCell shows the memory used on a testcase, in bytes.
type MemoryUsageCell struct {
	Key              Key    `json:"key"`
	ValenceKey       *Key   `json:"valence_key,omitempty"`
	MaxRelevant      int64  `json:"max_relevant"`
	PrimaryWatermark *int64 `json:"primary_watermark,omitempty"`
}

// MessageCell shows a textual message.
type MessageCell struct {
	Key        Key  `json:"key"`
	ValenceKey *Key `json:"valence_key,omitempty"`
}

// ScoreCell shows the score of a testcase.
type ScoreCell struct {
	Key   Key              `json:"key"`
	Range award.ScoreRange `json:"range"`
}

func (AwardReferenceCell) Kind() ColKind { return KindAwardReference }
func (RowNumberCell) Kind() ColKind      { return KindRowNumber }
func (TimeUsageCell) Kind() ColKind      { return KindTimeUsage }
func (MemoryUsageCell) Kind() ColKind    { return KindMemoryUsage }
func (MessageCell) Kind() ColKind        { return KindMessage }
func (ScoreCell) Kind() ColKind          { return KindScore }

// MarshalJSON writes cells as {"type": <kind>, ...fields}.
func (r Row) MarshalJSON() ([]byte, error) {
	cells := make([]json.RawMessage, 0, len(r.Cells))
	for _, c := range r.Cells {
		b, err := marshalTagged(string(c.Kind()), c)
		if err != nil {
			return nil, err
		}
		cells = append(cells, b)
	}
	return json.Marshal(struct {
		Cells []json.RawMessage `json:"cells"`
	}{cells})
}

// marshalTagged encodes v and prepends a "type" member.
func marshalTagged(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(tag)+9)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
