// Package noteservice composes the Note Store and Note Index into an
// id-keyed façade with optimistic-concurrency writes and the
// marker-replacement primitive the Job Engine applies transcripts through
// (spec.md §4.2).
package noteservice

import (
	"strings"
	"sync"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
	"github.com/miche1696/kefi-notetaker/internal/noteindex"
	"github.com/miche1696/kefi-notetaker/internal/notestore"
)

// Store is the narrow Note Store interface the service depends on.
type Store interface {
	Read(path string) (string, error)
	Write(path string, content string) error
	Exists(path string) bool
	List(folder string) ([]notestore.Entry, error)
	ListAll() ([]notestore.Entry, error)
	Rename(path, newName string) (string, error)
	Move(path, targetFolder string) (string, error)
	Delete(path string) error
}

// Note is the view returned to callers: store content plus identity.
type Note struct {
	ID       string
	Path     string
	Content  string
	Revision int
}

// ApplyStatus is the outcome of ReplaceMarker (spec.md §4.2 step 1/4/5).
type ApplyStatus string

const (
	StatusApplied      ApplyStatus = "applied"
	StatusMarkerMissing ApplyStatus = "marker_missing"
	StatusNoteDeleted   ApplyStatus = "note_deleted"
)

// ApplyResult is what ReplaceMarker returns.
type ApplyResult struct {
	Status   ApplyStatus
	NoteID   string
	NotePath string
	Revision int
}

// Service is the Note Service façade.
type Service struct {
	store Store
	index *noteindex.Index

	// writeLock serializes update_note and ReplaceMarker so that the
	// revision sequence for a given note is strictly monotonic even under
	// concurrent completions (spec.md §4.3 "Ordering guarantees").
	writeLock sync.Mutex
}

// New composes a Note Service from a Store and an Index.
func New(store Store, index *noteindex.Index) *Service {
	return &Service{store: store, index: index}
}

func stripExtension(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, ext := range notestore.SupportedExtensions {
		if strings.HasSuffix(normalized, ext) {
			return normalized[:len(normalized)-len(ext)]
		}
	}
	return normalized
}

func (s *Service) buildNote(path string) (Note, error) {
	content, err := s.store.Read(path)
	if err != nil {
		return Note{}, kfid.NotFound(err.Error())
	}
	canonical := stripExtension(path)
	identity := s.index.EnsurePath(canonical)
	return Note{ID: identity.NoteID, Path: canonical, Content: content, Revision: identity.Revision}, nil
}

// GetNote reads a note by its current path.
func (s *Service) GetNote(path string) (Note, error) {
	return s.buildNote(path)
}

// GetNoteByID reads a note by its stable id.
func (s *Service) GetNoteByID(noteID string) (Note, error) {
	_, path, ok := s.index.GetByID(noteID)
	if !ok {
		return Note{}, kfid.NotFound("note not found for id: " + noteID)
	}
	return s.buildNote(path)
}

// ResolveNotePath returns the current path for noteID, or "" if unknown.
func (s *Service) ResolveNotePath(noteID string) string {
	return s.index.ResolvePath(noteID)
}

// ListEntry is a listing row carrying identity alongside store metadata.
type ListEntry struct {
	notestore.Entry
	ID       string
	Revision int
}

func (s *Service) attachIdentity(entries []notestore.Entry) []ListEntry {
	out := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		identity := s.index.EnsurePath(e.Path)
		out = append(out, ListEntry{Entry: e, ID: identity.NoteID, Revision: identity.Revision})
	}
	return out
}

// ListNotes lists notes directly inside folder (empty for root).
func (s *Service) ListNotes(folder string) ([]ListEntry, error) {
	entries, err := s.store.List(folder)
	if err != nil {
		return nil, err
	}
	return s.attachIdentity(entries), nil
}

// ListAllNotes lists every note recursively.
func (s *Service) ListAllNotes() ([]ListEntry, error) {
	entries, err := s.store.ListAll()
	if err != nil {
		return nil, err
	}
	return s.attachIdentity(entries), nil
}

// SyncIndex reconciles the index against what's actually on disk. Intended
// to run at startup.
func (s *Service) SyncIndex() error {
	entries, err := s.store.ListAll()
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	s.index.SyncPaths(paths)
	return nil
}

// CreateNote creates a new note, rejecting duplicate paths and sanitizing
// the name.
func (s *Service) CreateNote(folder, name, content, fileType string) (Note, error) {
	if fileType != "txt" && fileType != "md" {
		return Note{}, kfid.NotFound("invalid file type: " + fileType)
	}
	sanitized := notestore.SanitizeFilename(name)
	if sanitized == "" {
		return Note{}, kfid.NotFound("invalid note name")
	}

	ext := "." + fileType
	var path string
	if folder != "" {
		path = folder + "/" + sanitized + ext
	} else {
		path = sanitized + ext
	}

	if s.store.Exists(path) {
		return Note{}, kfid.NotFound("note already exists: " + path)
	}
	if err := s.store.Write(path, content); err != nil {
		return Note{}, err
	}
	canonical := stripExtension(path)
	s.index.EnsurePath(canonical)
	return s.buildNote(canonical)
}

// UpdateNote overwrites a note's content under optimistic concurrency:
// fails with a kfid.KindRevisionConflict error when expectedRevision
// differs from the index's current revision.
func (s *Service) UpdateNote(path string, content string, expectedRevision int) (Note, error) {
	if !s.store.Exists(path) {
		return Note{}, kfid.NotFound("note not found: " + path)
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	canonical := stripExtension(path)
	identity := s.index.EnsurePath(canonical)
	if expectedRevision != identity.Revision {
		return Note{}, kfid.RevisionConflict(identity.NoteID, expectedRevision, identity.Revision)
	}

	if err := s.store.Write(canonical, content); err != nil {
		return Note{}, err
	}
	// Write precedes IncrementRevision: a crash between the two yields a
	// revision that trails content by one. Tolerable per spec.md §4.2 —
	// the next read re-ensures the path and only a concurrent writer who
	// observed the pre-crash revision would race the drift.
	s.index.IncrementRevision(identity.NoteID)
	return s.GetNoteByID(identity.NoteID)
}

// RenameNote renames the note at path to newName, updating the index.
func (s *Service) RenameNote(path, newName string) (Note, error) {
	canonical := stripExtension(path)
	identity := s.index.EnsurePath(canonical)

	newPath, err := s.store.Rename(path, newName)
	if err != nil {
		return Note{}, err
	}
	s.index.UpdatePath(identity.NoteID, stripExtension(newPath))
	return s.GetNoteByID(identity.NoteID)
}

// MoveNote moves the note at path into targetFolder, updating the index.
func (s *Service) MoveNote(path, targetFolder string) (Note, error) {
	canonical := stripExtension(path)
	identity := s.index.EnsurePath(canonical)

	newPath, err := s.store.Move(path, targetFolder)
	if err != nil {
		return Note{}, err
	}
	s.index.UpdatePath(identity.NoteID, stripExtension(newPath))
	return s.GetNoteByID(identity.NoteID)
}

// DeleteNote best-effort resolves the note's id, physically deletes the
// file, then tombstones the index entry.
func (s *Service) DeleteNote(path string) error {
	canonical := stripExtension(path)
	identity, found := s.index.GetByPath(canonical)

	if err := s.store.Delete(path); err != nil {
		return err
	}
	if found {
		s.index.MarkDeletedByID(identity.NoteID)
	} else {
		s.index.MarkDeletedByPath(canonical)
	}
	return nil
}

// markerCandidates returns the ordered, deduplicated list of spellings a
// marker token might appear as on disk after editor auto-escaping
// (spec.md §4.2 step 3).
func markerCandidates(markerToken string) []string {
	if markerToken == "" {
		return nil
	}
	bracketsOuterEscaped := strings.ReplaceAll(markerToken, "[[", `\[\[`)
	bothEscaped := strings.ReplaceAll(bracketsOuterEscaped, "]]", `\]\]`)
	everyBracketEscaped := strings.NewReplacer("[", `\[`, "]", `\]`).Replace(markerToken)

	ordered := []string{markerToken, bracketsOuterEscaped, bothEscaped, everyBracketEscaped}
	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// ReplaceMarker runs the marker-replacement protocol (spec.md §4.2):
// locate the note by id, find the first matching marker spelling among the
// escape candidates, replace its first occurrence with replacementText,
// and bump the revision. Runs under the service's write lock so that
// concurrent updates and marker-replacements serialize per process.
func (s *Service) ReplaceMarker(noteID, markerToken, replacementText string) ApplyResult {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	identity, path, ok := s.index.GetByID(noteID)
	if !ok {
		return ApplyResult{Status: StatusNoteDeleted, NoteID: noteID}
	}

	content, err := s.store.Read(path)
	if err != nil {
		return ApplyResult{Status: StatusNoteDeleted, NoteID: noteID}
	}

	var matched string
	found := false
	for _, candidate := range markerCandidates(markerToken) {
		if strings.Contains(content, candidate) {
			matched = candidate
			found = true
			break
		}
	}
	if !found {
		return ApplyResult{Status: StatusMarkerMissing, NoteID: noteID, NotePath: path, Revision: identity.Revision}
	}

	updated := strings.Replace(content, matched, replacementText, 1)
	if err := s.store.Write(path, updated); err != nil {
		return ApplyResult{Status: StatusMarkerMissing, NoteID: noteID, NotePath: path, Revision: identity.Revision}
	}

	newRevision, _ := s.index.IncrementRevision(noteID)
	return ApplyResult{Status: StatusApplied, NoteID: noteID, NotePath: path, Revision: newRevision}
}
