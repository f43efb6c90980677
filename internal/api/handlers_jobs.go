package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/readleaf/readleaf/internal/store"
)

// handleJobStatus reports the caller-facing progress/status/message triple
// for an ingestion or split job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	view, err := s.orchestrator.JobStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "job not found", http.StatusNotFound)
			return
		}
		s.log.Error("job status failed", "job_id", jobID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}
