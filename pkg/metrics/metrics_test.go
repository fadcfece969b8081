package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func findFamily(reg *prometheus.Registry, name string) *dto.MetricFamily {
	families, err := reg.Gather()
	So(err, ShouldBeNil)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10}),
			WithCustomLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(reg),
		)
		So(m, ShouldNotBeNil)

		Convey("Collectors use the configured names and labels", func() {
			m.evaluationsScheduled.Inc()
			f := findFamily(reg, "test_unit_evaluations_scheduled_total")
			So(f, ShouldNotBeNil)
			So(f.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 1)
			So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
		})

		Convey("A second manager on the same registry panics", func() {
			So(func() { NewManager(WithNamespace("test"), WithSubsystem("unit"), WithPrometheusRegistry(reg)) }, ShouldPanic)
		})
	})

	Convey("Empty options keep the defaults", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(reg))
		So(m.namespace, ShouldEqual, "arena")
		So(m.subsystem, ShouldEqual, "grading")
		So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		reg := GetRegistry()

		Convey("Evaluation lifecycle metrics are recorded", func() {
			So(func() {
				RecordEvaluationScheduled()
				RecordEvaluationRejected("backpressure")
				RecordEvaluationFinished("SUCCESS", 0.3)
				IncActiveEvaluations()
				DecActiveEvaluations()
			}, ShouldNotPanic)
			So(findFamily(reg, "arena_grading_evaluations_rejected_total"), ShouldNotBeNil)
			So(findFamily(reg, "arena_grading_evaluation_duration_seconds"), ShouldNotBeNil)
		})

		Convey("Store errors are counted only on failure", func() {
			RecordStoreOperation("append_event", 1.5, nil)
			RecordStoreOperation("best_awards", 2, errors.New("boom"))
			f := findFamily(reg, "arena_grading_store_errors_total")
			So(f, ShouldNotBeNil)
			So(f.GetMetric(), ShouldHaveLength, 1)
			So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "best_awards")
		})

		Convey("Gauges and HTTP metrics do not panic", func() {
			So(func() {
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateWorkerCount(4)
				UpdateSubmissionsTotal(7)
				RecordEventPersisted("score")
				RecordAwardWritten("SCORE")
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 1.2)
			}, ShouldNotPanic)
		})
	})
}
