// Package api exposes the evaluation service over HTTP for operators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/arenagrade/internal/adapters/repository"
	service "github.com/okian/arenagrade/internal/app"
	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/material"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/problem"
	"github.com/okian/arenagrade/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Submit(ctx context.Context, userID, problemName string, files []model.FieldValue) (model.Submission, error)
	Reschedule(ctx context.Context, id string) error

	Submission(ctx context.Context, id string) (types.SubmissionView, error)
	Events(ctx context.Context, id string) ([]model.Event, error)
	Awards(ctx context.Context, kind award.Kind, id string) ([]award.Record, error)
	Feedback(ctx context.Context, id string) (material.RenderedTable, error)

	Material(ctx context.Context, problemName string) (material.Material, error)
	BestAwards(ctx context.Context, kind award.Kind, userID, problemName string) ([]award.Best, error)
	TotalScore(ctx context.Context, userID, problemName string) (types.ScoreSummary, error)
}

// Server wires HTTP routes for the evaluation API.
type Server struct {
	router *chi.Mux

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submissionsHandler *SubmissionsHandler
	problemsHandler    *ProblemsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	s := &Server{
		router:             chi.NewRouter(),
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		submissionsHandler: NewSubmissionsHandler(deps),
		problemsHandler:    NewProblemsHandler(deps),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.routes()
	return s
}

// Router returns the root router so other adapters can mount routes.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Post("/submissions", s.submissionsHandler.HandleCreate)
	r.Route("/submissions/{id}", func(r chi.Router) {
		r.Get("/", s.submissionsHandler.HandleGet)
		r.Post("/evaluate", s.submissionsHandler.HandleEvaluate)
		r.Get("/events", s.submissionsHandler.HandleEvents)
		r.Get("/awards", s.submissionsHandler.HandleAwards)
		r.Get("/feedback", s.submissionsHandler.HandleFeedback)
	})

	r.Get("/problems/{name}/material", s.problemsHandler.HandleMaterial)
	r.Get("/users/{user}/problems/{name}/awards", s.problemsHandler.HandleBestAwards)
	r.Get("/users/{user}/problems/{name}/score", s.problemsHandler.HandleScore)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service and store errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrUnknownKind), errors.Is(err, service.ErrInvalidSubmission):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, problem.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrAlreadyEvaluating), errors.Is(err, service.ErrTerminalSubmission):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// kindParam reads the award kind query parameter, defaulting to score.
func kindParam(r *http.Request) (award.Kind, error) {
	q := r.URL.Query().Get("kind")
	if q == "" {
		return award.KindScore, nil
	}
	k, err := award.ParseKind(q)
	if err != nil {
		return 0, errors.Join(ErrUnknownKind, err)
	}
	return k, nil
}
