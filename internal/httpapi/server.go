// Package httpapi is the thin transcription/notes admission surface:
// multipart upload in, job views and note CRUD out. No auth, no tenant
// resolution, no CORS, no rate limiting — those are named non-goals for
// this core; the router below carries only request-logging and
// crash-safety middleware, grounded on the teacher's router.go shape.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/miche1696/kefi-notetaker/internal/jobengine"
	"github.com/miche1696/kefi-notetaker/internal/noteservice"
)

// Server holds the dependencies HTTP handlers need.
type Server struct {
	Jobs      *jobengine.Engine
	Notes     *noteservice.Service
	UploadDir string
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1/transcription/jobs", func(r chi.Router) {
		r.Post("/", s.CreateTranscriptionJob)
		r.Get("/", s.ListTranscriptionJobs)
		r.Post("/resume-interrupted", s.ResumeInterruptedJobs)
		r.Get("/{id}", s.GetTranscriptionJob)
		r.Post("/{id}/cancel", s.CancelTranscriptionJob)
		r.Post("/{id}/resume", s.ResumeTranscriptionJob)
	})

	r.Route("/v1/notes", func(r chi.Router) {
		r.Post("/", s.CreateNote)
		r.Get("/{id}", s.GetNote)
		r.Put("/{id}", s.UpdateNote)
		r.Post("/{id}/rename", s.RenameNote)
		r.Post("/{id}/move", s.MoveNote)
		r.Delete("/{id}", s.DeleteNote)
	})

	return r
}
