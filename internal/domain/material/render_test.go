package material_test

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/material"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/problem"
	"github.com/okian/arenagrade/internal/domain/scoring"
)

func valueEvent(serial int, key, raw string) model.Event {
	return model.Event{SubmissionID: "s", Serial: serial, Payload: model.ValueEvent{Key: key, Value: json.RawMessage(raw)}}
}

func TestRender(t *testing.T) {
	def := problem.Definition{
		Name:      "p",
		TimeLimit: ptr(1.0),
		Subtasks:  []problem.Subtask{{ID: 1, MaxScore: 10, Testcases: []int{1, 2}}},
	}
	m := material.Generate(def)

	Convey("Given an evaluation log with values for testcase 1", t, func() {
		events := []model.Event{
			valueEvent(0, "testcase.1.time_usage", `0.5`),
			valueEvent(1, "testcase.1.message", `"Output is correct"`),
			valueEvent(2, "testcase.1.valence", `"success"`),
			valueEvent(3, "testcase.1.score", `1`),
			valueEvent(4, "not a key", `1`),
			{SubmissionID: "s", Serial: 5, Payload: model.ScoreEvent{AwardName: "subtask.1.score", Score: 4}},
		}
		table := material.Render(m, events)

		Convey("Reported values fill their cells", func() {
			So(table.Rows, ShouldHaveLength, 2)
			row := table.Rows[0].Cells
			So(string(row[2].Value), ShouldEqual, `0.5`)
			So(row[2].Valence, ShouldEqual, scoring.ValenceWarning)
			So(string(row[4].Value), ShouldEqual, `"Output is correct"`)
			So(row[4].Valence, ShouldEqual, scoring.Valence("SUCCESS"))
			So(row[5].Valence, ShouldEqual, scoring.ValenceSuccess)
		})

		Convey("The award reference carries the subtask score", func() {
			cell := table.Rows[0].Cells[0]
			So(cell.AwardName, ShouldEqual, award.Name("subtask.1.score"))
			So(string(cell.Value), ShouldEqual, "4")
			So(cell.Valence, ShouldEqual, scoring.ValencePartial)
		})

		Convey("Missing values render as null", func() {
			row := table.Rows[1].Cells
			So(row[2].Value, ShouldBeNil)
			So(row[2].Valence, ShouldEqual, scoring.Valence(""))
			b, err := json.Marshal(row[4])
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"type":"message","value":null}`)
		})

		Convey("Row numbers are static", func() {
			So(*table.Rows[1].Cells[1].Number, ShouldEqual, 2)
		})
	})

	Convey("A declared usage valence wins over the watermark", t, func() {
		table := material.Render(m, []model.Event{
			valueEvent(0, "testcase.2.time_usage", `0.1`),
			valueEvent(1, "testcase.2.time_usage_valence", `"FAILURE"`),
		})
		So(table.Rows[1].Cells[2].Valence, ShouldEqual, scoring.ValenceFailure)
	})
}
