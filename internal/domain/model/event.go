// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/okian/arenagrade/internal/domain/award"
)

// Payload type discriminants as written on the wire and in the event log.
const (
	TypeScore = "score"
	TypeBadge = "badge"
	TypeValue = "value"
	TypeOther = "other"
)

// Payload is the closed set of evaluation event payloads.
type Payload interface {
	// Type returns the wire discriminant of the payload.
	Type() string
}

// ScoreEvent reports the score achieved for an award.
type ScoreEvent struct {
	AwardName award.Name
	Score     award.Score
}

// BadgeEvent reports whether a badge award was achieved.
type BadgeEvent struct {
	AwardName award.Name
	Badge     bool
}

// ValueEvent carries a runtime value bound to a feedback key.
type ValueEvent struct {
	Key   string
	Value json.RawMessage
}

// OtherEvent is any payload this pipeline does not interpret. Data holds the
// original JSON document.
type OtherEvent struct {
	Data json.RawMessage
}

func (ScoreEvent) Type() string { return TypeScore }
func (BadgeEvent) Type() string { return TypeBadge }
func (ValueEvent) Type() string { return TypeValue }
func (OtherEvent) Type() string { return TypeOther }

// Event is one entry of a submission's evaluation log. For a fixed
// submission, serials are 0,1,2,... in grader emission order.
type Event struct {
	SubmissionID string
	Serial       int
	Payload      Payload
}

// AwardOf derives the award record of an event. Only score and badge
// events produce a record.
func AwardOf(ev Event) (award.Record, bool) {
	switch p := ev.Payload.(type) {
	case ScoreEvent:
		return award.Record{
			Kind:         award.KindScore,
			SubmissionID: ev.SubmissionID,
			AwardName:    p.AwardName,
			Value:        float64(p.Score),
		}, true
	case BadgeEvent:
		return award.Record{
			Kind:         award.KindBadge,
			SubmissionID: ev.SubmissionID,
			AwardName:    p.AwardName,
			Value:        award.BadgeValue(p.Badge),
		}, true
	default:
		return award.Record{}, false
	}
}

// wirePayload is the flat JSON shape shared by all payload types.
type wirePayload struct {
	Type      string          `json:"type"`
	AwardName *string         `json:"award_name,omitempty"`
	Score     *float64        `json:"score,omitempty"`
	Badge     *bool           `json:"badge,omitempty"`
	Key       *string         `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EncodePayload serializes p for the event log.
func EncodePayload(p Payload) ([]byte, error) {
	var w wirePayload
	switch v := p.(type) {
	case ScoreEvent:
		name, score := string(v.AwardName), float64(v.Score)
		w = wirePayload{Type: TypeScore, AwardName: &name, Score: &score}
	case BadgeEvent:
		name, badge := string(v.AwardName), v.Badge
		w = wirePayload{Type: TypeBadge, AwardName: &name, Badge: &badge}
	case ValueEvent:
		key := v.Key
		w = wirePayload{Type: TypeValue, Key: &key, Value: orNull(v.Value)}
	case OtherEvent:
		w = wirePayload{Type: TypeOther, Data: orNull(v.Data)}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayload, p)
	}
	return json.Marshal(w)
}

// DecodePayload parses a payload written by EncodePayload.
func DecodePayload(b []byte) (Payload, error) {
	var w wirePayload
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	p, err := w.payload()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeGraderLine interprets one line emitted by a grader. It never fails:
// anything that is not a well-formed score, badge or value event becomes an
// OtherEvent so the line is still kept in the log.
func DecodeGraderLine(line []byte) Payload {
	line = bytes.TrimSpace(line)
	var w wirePayload
	if err := json.Unmarshal(line, &w); err != nil {
		return OtherEvent{Data: rawOf(line)}
	}
	if w.Type == TypeOther {
		return OtherEvent{Data: rawOf(line)}
	}
	p, err := w.payload()
	if err != nil {
		return OtherEvent{Data: rawOf(line)}
	}
	return p
}

func (w wirePayload) payload() (Payload, error) {
	switch w.Type {
	case TypeScore:
		if w.AwardName == nil || *w.AwardName == "" || w.Score == nil {
			return nil, fmt.Errorf("%w: score event needs award_name and score", ErrMalformedPayload)
		}
		if math.IsNaN(*w.Score) || math.IsInf(*w.Score, 0) {
			return nil, fmt.Errorf("%w: score is not finite", ErrMalformedPayload)
		}
		return ScoreEvent{AwardName: award.Name(*w.AwardName), Score: award.Score(*w.Score)}, nil
	case TypeBadge:
		if w.AwardName == nil || *w.AwardName == "" || w.Badge == nil {
			return nil, fmt.Errorf("%w: badge event needs award_name and badge", ErrMalformedPayload)
		}
		return BadgeEvent{AwardName: award.Name(*w.AwardName), Badge: *w.Badge}, nil
	case TypeValue:
		if w.Key == nil || *w.Key == "" {
			return nil, fmt.Errorf("%w: value event needs key", ErrMalformedPayload)
		}
		return ValueEvent{Key: *w.Key, Value: orNull(w.Value)}, nil
	case TypeOther:
		return OtherEvent{Data: orNull(w.Data)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, w.Type)
	}
}

// MarshalJSON writes the event with its payload inlined under "event".
func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := EncodePayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		SubmissionID string          `json:"submission_id"`
		Serial       int             `json:"serial"`
		Event        json.RawMessage `json:"event"`
	}{e.SubmissionID, e.Serial, payload})
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// rawOf keeps valid JSON documents verbatim and quotes anything else.
func rawOf(line []byte) json.RawMessage {
	if json.Valid(line) {
		return json.RawMessage(append([]byte(nil), line...))
	}
	quoted, _ := json.Marshal(string(line))
	return quoted
}
