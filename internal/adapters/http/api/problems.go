package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ProblemsHandler serves problem material and per-user aggregates.
type ProblemsHandler struct {
	deps Dependencies
}

func NewProblemsHandler(deps Dependencies) *ProblemsHandler {
	return &ProblemsHandler{deps: deps}
}

// HandleMaterial handles GET /problems/{name}/material.
func (h *ProblemsHandler) HandleMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Material(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleBestAwards handles GET /users/{user}/problems/{name}/awards.
func (h *ProblemsHandler) HandleBestAwards(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	bests, err := h.deps.BestAwards(r.Context(), kind, chi.URLParam(r, "user"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bests)
}

// HandleScore handles GET /users/{user}/problems/{name}/score.
func (h *ProblemsHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	sum, err := h.deps.TotalScore(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
