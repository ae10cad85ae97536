package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zombieplant/hydrocore/internal/jobs"
)

// maxListLimit caps GET /jobs?limit.
const maxListLimit = 500

// submitJobRequest is the request body for POST /jobs.
type submitJobRequest struct {
	Type   jobs.Type      `json:"type"`
	Params map[string]any `json:"params"`
}

// handleSubmitJob registers a background job and returns its id at once.
// Params are checked when the job runs, not here.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, err := s.jobs.Submit(req.Type, req.Params)
	switch {
	case errors.Is(err, jobs.ErrUnknownType):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, jobs.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "shutting down")
		return
	case err != nil:
		writeInternalError(w, "failed to submit job")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

// handleListJobs returns recent jobs, most recent first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing jobs", "error", err)
		writeInternalError(w, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// handleGetJob returns one job's current snapshot.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeNotFound(w, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("reading job", "job_id", id, "error", err)
		writeInternalError(w, "failed to read job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob signals cancellation. The response is 204 whether or not
// the job was still running; callers poll the job for its final state.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.jobs.Cancel(id) {
		s.logger.Debug("cancel ignored", "job_id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}
