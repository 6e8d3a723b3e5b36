package noteservice

import (
	"path/filepath"
	"testing"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
	"github.com/miche1696/kefi-notetaker/internal/noteindex"
	"github.com/miche1696/kefi-notetaker/internal/notestore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	store, err := notestore.New(filepath.Join(dir, "notes"))
	if err != nil {
		t.Fatalf("notestore.New: %v", err)
	}
	idx, err := noteindex.Open(filepath.Join(dir, "index.json"))
	if err != nil {
		t.Fatalf("noteindex.Open: %v", err)
	}
	return New(store, idx)
}

// Scenario 1 (spec.md §8): lifecycle + revision conflict.
func TestLifecycle_UpdateThenConflict(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.CreateNote("", "hello", "hello", "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if n.Revision != 1 {
		t.Fatalf("expected initial revision 1, got %d", n.Revision)
	}

	updated, err := svc.UpdateNote(n.Path, "hi", 1)
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if updated.Revision != 2 {
		t.Fatalf("expected revision 2 after update, got %d", updated.Revision)
	}

	_, err = svc.UpdateNote(n.Path, "stale", 1)
	if err == nil {
		t.Fatal("expected revision conflict error")
	}
	kerr, ok := err.(*kfid.Error)
	if !ok || kerr.Kind != kfid.KindRevisionConflict {
		t.Fatalf("expected RevisionConflict error, got %#v", err)
	}
	if kerr.CurrentRevision != 2 {
		t.Fatalf("expected conflict payload current_revision=2, got %d", kerr.CurrentRevision)
	}
}

// Scenario 2 (spec.md §8): escaped-marker replace.
func TestReplaceMarker_FindsEscapedSpelling(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.CreateNote("", "voice", `before \[\[tx:m:x]] after`, "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	result := svc.ReplaceMarker(n.ID, "[[tx:m:x]]", "done")
	if result.Status != StatusApplied {
		t.Fatalf("expected applied, got %+v", result)
	}
	if result.Revision != n.Revision+1 {
		t.Fatalf("expected revision to increase by 1, got %d -> %d", n.Revision, result.Revision)
	}

	note, err := svc.GetNoteByID(n.ID)
	if err != nil {
		t.Fatalf("GetNoteByID: %v", err)
	}
	if note.Content != "before done after" {
		t.Fatalf("got content %q", note.Content)
	}
}

func TestReplaceMarker_MissingToken_IsIdempotent(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.CreateNote("", "voice", "no marker here", "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	first := svc.ReplaceMarker(n.ID, "[[tx:m:missing]]", "x")
	second := svc.ReplaceMarker(n.ID, "[[tx:m:missing]]", "x")

	if first.Status != StatusMarkerMissing || second.Status != StatusMarkerMissing {
		t.Fatalf("expected marker_missing both times, got %+v and %+v", first, second)
	}
	if first.Revision != second.Revision {
		t.Fatalf("expected revision unchanged across repeated no-match calls: %d vs %d", first.Revision, second.Revision)
	}

	note, _ := svc.GetNoteByID(n.ID)
	if note.Content != "no marker here" {
		t.Fatalf("content mutated on no-match: %q", note.Content)
	}
}

func TestReplaceMarker_ReplacesOnlyFirstOccurrence(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.CreateNote("", "voice", "[[m]] middle [[m]]", "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	result := svc.ReplaceMarker(n.ID, "[[m]]", "X")
	if result.Status != StatusApplied {
		t.Fatalf("expected applied, got %+v", result)
	}
	note, _ := svc.GetNoteByID(n.ID)
	if note.Content != "X middle [[m]]" {
		t.Fatalf("expected only first occurrence replaced, got %q", note.Content)
	}
}

func TestReplaceMarker_DeletedNote_ReturnsNoteDeleted(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.CreateNote("", "voice", "[[m]]", "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if err := svc.DeleteNote(n.Path); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	result := svc.ReplaceMarker(n.ID, "[[m]]", "X")
	if result.Status != StatusNoteDeleted {
		t.Fatalf("expected note_deleted, got %+v", result)
	}
}

func TestRenameNote_PreservesIdentity(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.CreateNote("", "original", "content", "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	renamed, err := svc.RenameNote(n.Path, "renamed")
	if err != nil {
		t.Fatalf("RenameNote: %v", err)
	}
	if renamed.ID != n.ID {
		t.Fatalf("expected id to survive rename, got %q vs %q", renamed.ID, n.ID)
	}
	if svc.ResolveNotePath(n.ID) != "renamed" {
		t.Fatalf("expected resolved path to be updated, got %q", svc.ResolveNotePath(n.ID))
	}
}
