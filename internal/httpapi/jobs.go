package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/miche1696/kefi-notetaker/internal/kfid"
)

const maxUploadBytes = 64 << 20 // 64 MiB

// CreateTranscriptionJob admits a job from a multipart upload (spec.md §4.3
// "Admission"). On any non-2xx response the saved upload is deleted —
// ownership only transfers to the engine once CreateJob succeeds.
func (s *Server) CreateTranscriptionJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form", CorrelationID: GetCorrelationID(r.Context())})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing audio file", CorrelationID: GetCorrelationID(r.Context())})
		return
	}
	defer file.Close()

	upload, err := saveUpload(s.UploadDir, file, header)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save upload", CorrelationID: GetCorrelationID(r.Context())})
		return
	}

	noteID := r.FormValue("note_id")
	markerToken := r.FormValue("marker_token")
	launchSource := r.FormValue("launch_source")

	view, err := s.Jobs.CreateJob(upload.path, header.Filename, noteID, markerToken, launchSource)
	if err != nil {
		upload.cleanup()
		writeErr(w, r, err)
		return
	}
	upload.commit()
	writeJSON(w, http.StatusCreated, view)
}

// GetTranscriptionJob returns one job's current view.
func (s *Server) GetTranscriptionJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := s.Jobs.GetJob(id)
	if !ok {
		writeErr(w, r, kfid.NotFound("job not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListTranscriptionJobs returns every job, newest first.
func (s *Server) ListTranscriptionJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Jobs.ListJobs())
}

// CancelTranscriptionJob implements the three-case cancel contract
// (spec.md §4.3 "Cancellation").
func (s *Server) CancelTranscriptionJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.Jobs.CancelJob(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ResumeTranscriptionJob manually resumes one interrupted job.
func (s *Server) ResumeTranscriptionJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.Jobs.ResumeJob(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ResumeInterruptedJobs resumes every interrupted job and reports the count.
func (s *Server) ResumeInterruptedJobs(w http.ResponseWriter, r *http.Request) {
	count := s.Jobs.ResumeInterrupted()
	writeJSON(w, http.StatusOK, map[string]int{"resumed": count})
}
