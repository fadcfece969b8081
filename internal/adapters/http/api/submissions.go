package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/types"
)

const maxSubmissionBytes = 16 << 20

// submissionRequest is the body of POST /submissions. File contents are
// base64 encoded.
type submissionRequest struct {
	UserID      string             `json:"user_id"`
	ProblemName string             `json:"problem_name"`
	Files       []model.FieldValue `json:"files"`
}

func (s submissionRequest) validate() error {
	switch {
	case strings.TrimSpace(s.UserID) == "":
		return fmt.Errorf("%w: missing user_id", ErrBadRequest)
	case strings.TrimSpace(s.ProblemName) == "":
		return fmt.Errorf("%w: missing problem_name", ErrBadRequest)
	case len(s.Files) == 0:
		return fmt.Errorf("%w: missing files", ErrBadRequest)
	}
	return nil
}

// SubmissionsHandler serves the submission routes.
type SubmissionsHandler struct {
	deps Dependencies
}

func NewSubmissionsHandler(deps Dependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps}
}

// HandleCreate handles POST /submissions. A submission stored but not
// scheduled is reported with its Location so it can be rescheduled.
func (h *SubmissionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	sub, err := h.deps.Submit(r.Context(), req.UserID, req.ProblemName, req.Files)
	if sub.ID != "" {
		w.Header().Set("Location", "/submissions/"+sub.ID)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.ViewOf(sub))
}

// HandleGet handles GET /submissions/{id}.
func (h *SubmissionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Submission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleEvaluate handles POST /submissions/{id}/evaluate.
func (h *SubmissionsHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Reschedule(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "id": id})
}

// HandleEvents handles GET /submissions/{id}/events.
func (h *SubmissionsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleAwards handles GET /submissions/{id}/awards?kind=score|badge.
func (h *SubmissionsHandler) HandleAwards(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.deps.Submission(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	recs, err := h.deps.Awards(r.Context(), kind, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleFeedback handles GET /submissions/{id}/feedback.
func (h *SubmissionsHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	table, err := h.deps.Feedback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
