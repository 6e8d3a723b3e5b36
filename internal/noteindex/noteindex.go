// Package noteindex is the durable mapping between stable note ids,
// current canonical paths, and monotonic revisions (spec.md §4.1). Paths
// are mutable (rename/move); note ids survive those operations. The
// secondary path->id map is always a pure projection of the primary table
// over non-deleted records.
package noteindex

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
)

// Record is one entry of the primary table (spec.md §3 "Note identity record").
type Record struct {
	Path      string `json:"path"`
	Revision  int    `json:"revision"`
	Deleted   bool   `json:"deleted"`
	UpdatedAt string `json:"updated_at"`
}

// Identity is the (note_id, revision) pair returned by most Index methods.
type Identity struct {
	NoteID   string
	Revision int
}

// document is the on-disk shape (spec.md §6 "Note index file format").
type document struct {
	Version   int                `json:"version"`
	UpdatedAt string             `json:"updated_at"`
	Notes     map[string]*Record `json:"notes"`
	PathToID  map[string]string  `json:"path_to_id"`
}

func emptyDocument() *document {
	return &document{
		Version:   1,
		UpdatedAt: kfid.NowISO(),
		Notes:     map[string]*Record{},
		PathToID:  map[string]string{},
	}
}

// Index is the Note Index: a single JSON document rewritten atomically on
// every state-changing call, guarded by one mutex covering both the
// in-memory state and the write.
type Index struct {
	path string
	mu   sync.Mutex
	doc  *document
}

// Open loads (or creates) the index file at path.
func Open(path string) (*Index, error) {
	idx := &Index{path: path}
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	idx.doc = doc
	if err := idx.persistLocked(); err != nil {
		return nil, err
	}
	return idx, nil
}

func loadDocument(path string) (*document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyDocument(), nil
		}
		return emptyDocument(), nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return emptyDocument(), nil
	}
	if doc.Notes == nil {
		doc.Notes = map[string]*Record{}
	}
	if doc.PathToID == nil {
		doc.PathToID = map[string]string{}
	}
	return &doc, nil
}

func (idx *Index) persistLocked() error {
	idx.doc.UpdatedAt = kfid.NowISO()
	return kfid.WriteJSONAtomic(idx.path, idx.doc)
}

// rebuildProjectionLocked recomputes path_to_id from notes over
// non-deleted records, per the invariant in spec.md §3.
func (idx *Index) rebuildProjectionLocked() {
	rebuilt := map[string]string{}
	for id, rec := range idx.doc.Notes {
		if rec.Deleted {
			continue
		}
		if rec.Path != "" {
			rebuilt[rec.Path] = id
		}
	}
	idx.doc.PathToID = rebuilt
}

func normalize(path string) string {
	out := make([]rune, 0, len(path))
	for _, r := range path {
		if r == '\\' {
			out = append(out, '/')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// EnsurePath returns the (note_id, revision) for path, creating a record on
// first sight. Idempotent: repeated calls with the same path return the
// same note_id. A tombstoned record is revived, its revision preserved.
func (idx *Index) EnsurePath(path string) Identity {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path = normalize(path)
	if id, ok := idx.doc.PathToID[path]; ok {
		rec := idx.doc.Notes[id]
		return Identity{NoteID: id, Revision: rec.Revision}
	}

	// The path might belong to a tombstoned record not currently in the
	// projection; scan for it so revival preserves the existing id.
	for id, rec := range idx.doc.Notes {
		if rec.Path == path && rec.Deleted {
			rec.Deleted = false
			rec.UpdatedAt = kfid.NowISO()
			idx.rebuildProjectionLocked()
			idx.persistLocked()
			return Identity{NoteID: id, Revision: rec.Revision}
		}
	}

	id := kfid.New()
	idx.doc.Notes[id] = &Record{
		Path:      path,
		Revision:  1,
		Deleted:   false,
		UpdatedAt: kfid.NowISO(),
	}
	idx.doc.PathToID[path] = id
	idx.persistLocked()
	return Identity{NoteID: id, Revision: 1}
}

// GetByPath returns the identity for a live (non-deleted) path, or false.
func (idx *Index) GetByPath(path string) (Identity, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path = normalize(path)
	id, ok := idx.doc.PathToID[path]
	if !ok {
		return Identity{}, false
	}
	rec := idx.doc.Notes[id]
	if rec == nil || rec.Deleted {
		return Identity{}, false
	}
	return Identity{NoteID: id, Revision: rec.Revision}, true
}

// GetByID returns the path+revision for a live note id, or false.
func (idx *Index) GetByID(noteID string) (Identity, string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.doc.Notes[noteID]
	if !ok || rec.Deleted {
		return Identity{}, "", false
	}
	return Identity{NoteID: noteID, Revision: rec.Revision}, rec.Path, true
}

// IncrementRevision bumps the revision for noteID and returns the new
// value. Returns (0, false) if the id is unknown or tombstoned.
func (idx *Index) IncrementRevision(noteID string) (int, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.doc.Notes[noteID]
	if !ok || rec.Deleted {
		return 0, false
	}
	rec.Revision++
	rec.UpdatedAt = kfid.NowISO()
	idx.persistLocked()
	return rec.Revision, true
}

// UpdatePath atomically moves noteID to newPath, removing the old
// projection entry and inserting the new one. The caller is responsible
// for ensuring newPath is collision-free.
func (idx *Index) UpdatePath(noteID string, newPath string) (Identity, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.doc.Notes[noteID]
	if !ok {
		return Identity{}, false
	}
	oldPath := rec.Path
	newPath = normalize(newPath)
	rec.Path = newPath
	rec.Deleted = false
	rec.UpdatedAt = kfid.NowISO()

	if oldPath != "" && idx.doc.PathToID[oldPath] == noteID {
		delete(idx.doc.PathToID, oldPath)
	}
	idx.doc.PathToID[newPath] = noteID
	idx.persistLocked()
	return Identity{NoteID: noteID, Revision: rec.Revision}, true
}

// MarkDeletedByID tombstones noteID, removing its path from the projection.
func (idx *Index) MarkDeletedByID(noteID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.doc.Notes[noteID]
	if !ok {
		return
	}
	rec.Deleted = true
	rec.UpdatedAt = kfid.NowISO()
	if idx.doc.PathToID[rec.Path] == noteID {
		delete(idx.doc.PathToID, rec.Path)
	}
	idx.persistLocked()
}

// MarkDeletedByPath tombstones whatever live record currently maps to path.
func (idx *Index) MarkDeletedByPath(path string) {
	idx.mu.Lock()
	path = normalize(path)
	id, ok := idx.doc.PathToID[path]
	idx.mu.Unlock()
	if ok {
		idx.MarkDeletedByID(id)
	}
}

// CheckExpectedRevision reports whether noteID's current revision equals
// expected. False for unknown or tombstoned ids.
func (idx *Index) CheckExpectedRevision(noteID string, expected int) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.doc.Notes[noteID]
	if !ok || rec.Deleted {
		return false
	}
	return rec.Revision == expected
}

// ResolvePath returns the current path of a live note id, or "" if unknown
// or tombstoned.
func (idx *Index) ResolvePath(noteID string) string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.doc.Notes[noteID]
	if !ok || rec.Deleted {
		return ""
	}
	return rec.Path
}

// SyncPaths is the startup reconciler: records whose path is absent from
// currentPaths are tombstoned, records whose path is present are
// un-tombstoned (creating new records for unseen paths), and the
// projection is rebuilt from the primary table.
func (idx *Index) SyncPaths(currentPaths []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	seen := map[string]bool{}
	for _, p := range currentPaths {
		if p == "" {
			continue
		}
		seen[normalize(p)] = true
	}

	for path := range seen {
		if _, ok := idx.doc.PathToID[path]; ok {
			continue
		}
		found := false
		for id, rec := range idx.doc.Notes {
			if rec.Path == path {
				rec.Deleted = false
				rec.UpdatedAt = kfid.NowISO()
				idx.doc.PathToID[path] = id
				found = true
				break
			}
		}
		if !found {
			id := kfid.New()
			idx.doc.Notes[id] = &Record{Path: path, Revision: 1, Deleted: false, UpdatedAt: kfid.NowISO()}
			idx.doc.PathToID[path] = id
		}
	}

	for _, rec := range idx.doc.Notes {
		if rec.Path == "" {
			continue
		}
		if seen[rec.Path] {
			rec.Deleted = false
		} else {
			rec.Deleted = true
			rec.UpdatedAt = kfid.NowISO()
		}
	}

	idx.rebuildProjectionLocked()
	idx.persistLocked()
}
