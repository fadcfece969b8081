package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/arenagrade/internal/adapters/grader"
	"github.com/okian/arenagrade/internal/adapters/http/api"
	"github.com/okian/arenagrade/internal/adapters/repository"
	service "github.com/okian/arenagrade/internal/app"
	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/problem"
	"github.com/okian/arenagrade/internal/domain/types"
	"github.com/okian/arenagrade/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const manifest = `
name = "sum"
title = "Sum"

[[subtasks]]
id = 1
max_score = 40
testcases = [1, 2]
`

type fixture struct {
	srv   *httptest.Server
	svc   *service.Service
	store *repository.MemoryStore
}

func newFixture(t *testing.T, g grader.Grader, opts ...service.Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sum"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sum", problem.ManifestName), []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}
	store := repository.NewMemoryStore()
	svc := service.New(store, g, append([]service.Option{service.WithProblemsDir(dir), service.WithWorkerCount(1)}, opts...)...)
	return &fixture{srv: httptest.NewServer(api.NewServer(svc, svc)), svc: svc, store: store}
}

func (f *fixture) close() {
	f.srv.Close()
	_ = f.svc.Stop(context.Background())
}

func (f *fixture) get(path string, out any) int {
	resp, err := http.Get(f.srv.URL + path)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	if out != nil {
		So(json.NewDecoder(resp.Body).Decode(out), ShouldBeNil)
	}
	return resp.StatusCode
}

func (f *fixture) post(path, body string, out any) (*http.Response, int) {
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewBufferString(body))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	if out != nil {
		So(json.NewDecoder(resp.Body).Decode(out), ShouldBeNil)
	}
	return resp, resp.StatusCode
}

func waitSuccess(store repository.Store, id string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sub, err := store.Submission(context.Background(), id); err == nil && sub.Status.Terminal() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// base64 of "print(1)"
const submitBody = `{"user_id":"alice","problem_name":"sum","files":[{"field":"solution","file":{"name":"main.py","content":"cHJpbnQoMSk="}}]}`

func TestSubmissionRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture(t, grader.NewScripted([]model.Payload{
			model.ValueEvent{Key: "testcase.1.message", Value: json.RawMessage(`"ok"`)},
			model.ScoreEvent{AwardName: "subtask.1.score", Score: 25},
		}))
		So(f.svc.Start(context.Background()), ShouldBeNil)
		defer f.close()

		Convey("POST /submissions accepts and evaluates a submission", func() {
			var view types.SubmissionView
			resp, code := f.post("/submissions", submitBody, &view)
			So(code, ShouldEqual, http.StatusAccepted)
			So(view.Status, ShouldEqual, model.StatusQueued)
			So(resp.Header.Get("Location"), ShouldEqual, "/submissions/"+view.ID)
			waitSuccess(f.store, view.ID)

			var got types.SubmissionView
			So(f.get("/submissions/"+view.ID, &got), ShouldEqual, http.StatusOK)
			So(got.Status, ShouldEqual, model.StatusSuccess)

			var events []json.RawMessage
			So(f.get("/submissions/"+view.ID+"/events", &events), ShouldEqual, http.StatusOK)
			So(events, ShouldHaveLength, 2)
			So(string(events[1]), ShouldContainSubstring, `"type":"score"`)

			var recs []award.Record
			So(f.get("/submissions/"+view.ID+"/awards?kind=score", &recs), ShouldEqual, http.StatusOK)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].Value, ShouldEqual, 25.0)

			var feedback map[string]any
			So(f.get("/submissions/"+view.ID+"/feedback", &feedback), ShouldEqual, http.StatusOK)
			So(feedback["rows"], ShouldHaveLength, 2)

			var sum types.ScoreSummary
			So(f.get("/users/alice/problems/sum/score", &sum), ShouldEqual, http.StatusOK)
			So(sum.Score, ShouldEqual, award.Score(25))
			So(sum.MaxScore, ShouldEqual, award.Score(40))

			var bests []award.Best
			So(f.get("/users/alice/problems/sum/awards", &bests), ShouldEqual, http.StatusOK)
			So(bests, ShouldHaveLength, 1)
			So(bests[0].SubmissionID, ShouldEqual, view.ID)

			Convey("And evaluating it again is a conflict", func() {
				var e map[string]string
				_, code := f.post("/submissions/"+view.ID+"/evaluate", "", &e)
				So(code, ShouldEqual, http.StatusConflict)
				So(e["code"], ShouldEqual, "conflict")
			})
		})

		Convey("Malformed bodies are rejected", func() {
			var e map[string]string
			_, code := f.post("/submissions", `{"user_id":`, &e)
			So(code, ShouldEqual, http.StatusBadRequest)
			So(e["code"], ShouldEqual, "bad_request")

			_, code = f.post("/submissions", `{"user_id":"a","problem_name":"sum","files":[]}`, nil)
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Unknown resources are 404", func() {
			So(f.get("/submissions/nope", nil), ShouldEqual, http.StatusNotFound)
			So(f.get("/submissions/nope/events", nil), ShouldEqual, http.StatusNotFound)
			So(f.get("/submissions/nope/awards", nil), ShouldEqual, http.StatusNotFound)
			So(f.get("/problems/nope/material", nil), ShouldEqual, http.StatusNotFound)
		})

		Convey("An unknown award kind is a bad request", func() {
			So(f.get("/users/alice/problems/sum/awards?kind=medal", nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("The material of a problem is served with typed cells", func() {
			var m map[string]any
			So(f.get("/problems/sum/material", &m), ShouldEqual, http.StatusOK)
			So(m["awards"], ShouldHaveLength, 1)
		})
	})
}

func TestBackpressure(t *testing.T) {
	Convey("Given an API whose queue holds one evaluation and no worker runs", t, func() {
		f := newFixture(t, grader.NewScripted(nil), service.WithQueueSize(1))
		defer f.close()

		_, code := f.post("/submissions", submitBody, nil)
		So(code, ShouldEqual, http.StatusAccepted)

		Convey("The next submission gets 429 with its location", func() {
			var e map[string]string
			resp, code := f.post("/submissions", submitBody, &e)
			So(code, ShouldEqual, http.StatusTooManyRequests)
			So(e["code"], ShouldEqual, "backpressure")
			So(resp.Header.Get("Location"), ShouldStartWith, "/submissions/")
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture(t, grader.NewScripted(nil))
		So(f.svc.Start(context.Background()), ShouldBeNil)
		defer f.close()

		Convey("GET /stats reports the pool", func() {
			var stats map[string]any
			So(f.get("/stats", &stats), ShouldEqual, http.StatusOK)
			So(stats["started"], ShouldEqual, true)
			So(stats["worker_count"], ShouldEqual, 1)
		})

		Convey("GET /healthz serves Prometheus metrics", func() {
			f.get("/stats", nil)
			resp, err := http.Get(f.srv.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, "arena_grading_http_requests_total")
		})
	})
}
