package award_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/arenagrade/internal/domain/award"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKind(t *testing.T) {
	Convey("Given award kinds", t, func() {
		Convey("Then they serialize to stable discriminants", func() {
			So(award.KindScore.String(), ShouldEqual, "SCORE")
			So(award.KindBadge.String(), ShouldEqual, "BADGE")
		})

		Convey("When parsing discriminants", func() {
			k, err := award.ParseKind("score")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, award.KindScore)

			k, err = award.ParseKind("BADGE")
			So(err, ShouldBeNil)
			So(k, ShouldEqual, award.KindBadge)

			_, err = award.ParseKind("medal")
			So(errors.Is(err, award.ErrUnknownKind), ShouldBeTrue)
		})

		Convey("When marshaling an invalid kind", func() {
			_, err := award.Kind(7).MarshalText()
			So(errors.Is(err, award.ErrUnknownKind), ShouldBeTrue)
		})
	})
}

func TestScoreRange_Contains(t *testing.T) {
	Convey("Given a partial range up to 100", t, func() {
		r := award.ScoreRange{Max: 100, AllowPartial: true}
		So(r.Contains(0), ShouldBeTrue)
		So(r.Contains(42.5), ShouldBeTrue)
		So(r.Contains(100), ShouldBeTrue)
		So(r.Contains(100.1), ShouldBeFalse)
		So(r.Contains(-1), ShouldBeFalse)
	})

	Convey("Given an all-or-nothing range", t, func() {
		r := award.ScoreRange{Max: 30, AllowPartial: false}
		So(r.Contains(0), ShouldBeTrue)
		So(r.Contains(30), ShouldBeTrue)
		So(r.Contains(15), ShouldBeFalse)
	})
}

func TestDomain_JSON(t *testing.T) {
	Convey("Given a score domain", t, func() {
		d := award.ScoreDomain(award.ScoreRange{Precision: 0, Max: 100, AllowPartial: true})

		b, err := json.Marshal(d)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `{"type":"score","range":{"precision":0,"max":100,"allow_partial":true}}`)

		Convey("Then it decodes back to the same domain", func() {
			var out award.Domain
			So(json.Unmarshal(b, &out), ShouldBeNil)
			So(out.Kind, ShouldEqual, award.KindScore)
			So(*out.Range, ShouldResemble, *d.Range)
		})
	})

	Convey("Given a badge domain", t, func() {
		b, err := json.Marshal(award.BadgeDomain())
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `{"type":"badge"}`)
	})

	Convey("Given a score domain without range", t, func() {
		_, err := json.Marshal(award.Domain{Kind: award.KindScore})
		So(errors.Is(err, award.ErrMissingRange), ShouldBeTrue)

		var out award.Domain
		err = json.Unmarshal([]byte(`{"type":"score"}`), &out)
		So(errors.Is(err, award.ErrMissingRange), ShouldBeTrue)
	})
}

func TestText(t *testing.T) {
	Convey("Given a plain text with a short variant", t, func() {
		text := award.Plain("Subtask 1").WithShort("ST 1")

		So(len(text), ShouldEqual, 2)
		So(text.Default(), ShouldEqual, "Subtask 1")
		So(text[1].Attributes, ShouldResemble, []award.VariantAttribute{{Key: "style", Value: "short"}})
	})

	Convey("Given an empty text", t, func() {
		So(award.Text{}.Default(), ShouldEqual, "")
	})
}

func TestBadgeValue(t *testing.T) {
	Convey("Badges are stored as 1.0 and 0.0", t, func() {
		So(award.BadgeValue(true), ShouldEqual, 1.0)
		So(award.BadgeValue(false), ShouldEqual, 0.0)
		So(award.Record{Value: 1}.Badge(), ShouldBeTrue)
		So(award.Record{Value: 0}.Badge(), ShouldBeFalse)
	})
}
