package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/miche1696/kefi-notetaker/internal/kfid"
)

// GetNote returns a note by its stable id.
func (s *Server) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := s.Notes.GetNoteByID(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

type createNoteRequest struct {
	Folder   string `json:"folder"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	FileType string `json:"file_type"`
}

// CreateNote creates a new note.
func (s *Server) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", CorrelationID: GetCorrelationID(r.Context())})
		return
	}
	note, err := s.Notes.CreateNote(req.Folder, req.Name, req.Content, req.FileType)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

type updateNoteRequest struct {
	Content          string `json:"content"`
	ExpectedRevision int    `json:"expected_revision"`
}

// UpdateNote overwrites a note's content under optimistic concurrency,
// returning 409 on a revision mismatch (spec.md §4.2).
func (s *Server) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := s.Notes.ResolveNotePath(id)
	if path == "" {
		writeErr(w, r, kfid.NotFound("note not found: "+id))
		return
	}

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", CorrelationID: GetCorrelationID(r.Context())})
		return
	}
	note, err := s.Notes.UpdateNote(path, req.Content, req.ExpectedRevision)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

type renameNoteRequest struct {
	NewName string `json:"new_name"`
}

// RenameNote renames a note in place, preserving its id.
func (s *Server) RenameNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := s.Notes.ResolveNotePath(id)
	if path == "" {
		writeErr(w, r, kfid.NotFound("note not found: "+id))
		return
	}
	var req renameNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", CorrelationID: GetCorrelationID(r.Context())})
		return
	}
	note, err := s.Notes.RenameNote(path, req.NewName)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

type moveNoteRequest struct {
	TargetFolder string `json:"target_folder"`
}

// MoveNote moves a note into a different folder, preserving its id.
func (s *Server) MoveNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := s.Notes.ResolveNotePath(id)
	if path == "" {
		writeErr(w, r, kfid.NotFound("note not found: "+id))
		return
	}
	var req moveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", CorrelationID: GetCorrelationID(r.Context())})
		return
	}
	note, err := s.Notes.MoveNote(path, req.TargetFolder)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote tombstones a note's identity and removes its file.
func (s *Server) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := s.Notes.ResolveNotePath(id)
	if path == "" {
		writeErr(w, r, kfid.NotFound("note not found: "+id))
		return
	}
	if err := s.Notes.DeleteNote(path); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
