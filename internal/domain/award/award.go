// Package award contains the value types describing a scoring result.
package award

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Score is a real-valued score.
type Score float64

// Name identifies an award within a problem. A name is never reused for a
// semantically different award.
type Name string

// Kind is the closed set of award interpretations.
type Kind int

const (
	// KindScore awards carry a continuous score within a ScoreRange.
	KindScore Kind = iota + 1
	// KindBadge awards are either achieved (1.0) or not (0.0).
	KindBadge
)

// Storage discriminants. They are persisted and must stay stable.
const (
	discriminantScore = "SCORE"
	discriminantBadge = "BADGE"
)

// String returns the storage discriminant of k.
func (k Kind) String() string {
	switch k {
	case KindScore:
		return discriminantScore
	case KindBadge:
		return discriminantBadge
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k == KindScore || k == KindBadge }

// ParseKind parses a storage discriminant. Matching is case-insensitive so
// query parameters like "score" resolve too.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case discriminantScore:
		return KindScore, nil
	case discriminantBadge:
		return KindBadge, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ScoreRange is the display and validity contract of a score award.
type ScoreRange struct {
	// Precision is the number of significant decimal places.
	Precision int `json:"precision"`
	// Max is the maximum achievable score.
	Max Score `json:"max"`
	// AllowPartial tells whether scores strictly between 0 and Max are meaningful.
	AllowPartial bool `json:"allow_partial"`
}

// Contains reports whether s is a legal value for the range.
func (r ScoreRange) Contains(s Score) bool {
	if s < 0 || s > r.Max {
		return false
	}
	if !r.AllowPartial && s != 0 && s != r.Max {
		return false
	}
	return true
}

// Domain determines how a numeric award value is interpreted.
// Score domains always carry a range, badge domains never do.
type Domain struct {
	Kind  Kind
	Range *ScoreRange
}

// ScoreDomain returns a score domain with range r.
func ScoreDomain(r ScoreRange) Domain {
	return Domain{Kind: KindScore, Range: &r}
}

// BadgeDomain returns the badge domain.
func BadgeDomain() Domain {
	return Domain{Kind: KindBadge}
}

type domainJSON struct {
	Type  string      `json:"type"`
	Range *ScoreRange `json:"range,omitempty"`
}

// MarshalJSON writes the domain as {"type":"score","range":{...}} or {"type":"badge"}.
func (d Domain) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case KindScore:
		if d.Range == nil {
			return nil, ErrMissingRange
		}
		return json.Marshal(domainJSON{Type: "score", Range: d.Range})
	case KindBadge:
		return json.Marshal(domainJSON{Type: "badge"})
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(d.Kind))
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *Domain) UnmarshalJSON(b []byte) error {
	var raw domainJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "score":
		if raw.Range == nil {
			return ErrMissingRange
		}
		*d = ScoreDomain(*raw.Range)
	case "badge":
		*d = BadgeDomain()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, raw.Type)
	}
	return nil
}

// VariantAttribute qualifies a text variant, e.g. style=short.
type VariantAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TextVariant is one rendition of a localized text.
type TextVariant struct {
	Attributes []VariantAttribute `json:"attributes"`
	Value      string             `json:"value"`
}

// Text is a localized text given as an ordered list of variants.
type Text []TextVariant

// Plain returns a text with a single unqualified variant.
func Plain(value string) Text {
	return Text{{Attributes: []VariantAttribute{}, Value: value}}
}

// WithShort appends a style=short variant.
func (t Text) WithShort(value string) Text {
	out := make(Text, len(t), len(t)+1)
	copy(out, t)
	return append(out, TextVariant{
		Attributes: []VariantAttribute{{Key: "style", Value: "short"}},
		Value:      value,
	})
}

// Default returns the first variant without attributes, or the first variant.
func (t Text) Default() string {
	for _, v := range t {
		if len(v.Attributes) == 0 {
			return v.Value
		}
	}
	if len(t) > 0 {
		return t[0].Value
	}
	return ""
}

// Award describes an item to which a score can be assigned. It is created
// when a problem definition is processed and never mutated afterwards.
type Award struct {
	// Name identifies the award; not meant to be shown to contestants.
	Name Name `json:"name"`
	// Title is the user-facing name.
	Title Text `json:"title"`
	// Domain tells how values of this award are interpreted.
	Domain Domain `json:"domain"`
}

// Record is a persisted award value for one submission.
type Record struct {
	Kind         Kind    `json:"kind"`
	SubmissionID string  `json:"submission_id"`
	AwardName    Name    `json:"award_name"`
	Value        float64 `json:"value"`
}

// Badge reports the boolean reading of a badge record.
func (r Record) Badge() bool { return r.Value == 1 }

// BadgeValue encodes a badge as a two-valued real.
func BadgeValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Best is the maximum value reached for an award by one user on one problem,
// together with the submission chosen to represent it.
type Best struct {
	AwardName    Name    `json:"award_name"`
	Value        float64 `json:"value"`
	SubmissionID string  `json:"submission_id"`
}
