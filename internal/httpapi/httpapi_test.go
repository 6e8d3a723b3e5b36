package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/miche1696/kefi-notetaker/internal/jobengine"
	"github.com/miche1696/kefi-notetaker/internal/kfsettings"
	"github.com/miche1696/kefi-notetaker/internal/noteindex"
	"github.com/miche1696/kefi-notetaker/internal/noteservice"
	"github.com/miche1696/kefi-notetaker/internal/notestore"
	"github.com/miche1696/kefi-notetaker/internal/transcriber"
)

func newTestServer(t *testing.T) (*Server, *noteservice.Service) {
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
	notes := noteservice.New(store, idx)

	settingsPath := filepath.Join(dir, "settings.json")
	if err := kfsettings.Save(settingsPath, kfsettings.Defaults()); err != nil {
		t.Fatalf("kfsettings.Save: %v", err)
	}

	jobs := jobengine.New(jobengine.Options{
		Notes:        notes,
		Transcriber:  &transcriber.Fake{},
		SettingsPath: settingsPath,
		SnapshotPath: filepath.Join(dir, "jobs.snapshot.json"),
		EventsPath:   filepath.Join(dir, "jobs.events.jsonl"),
		WorkerSlots:  1,
		IsTransient:  transcriber.IsTransient,
	})
	t.Cleanup(func() { jobs.Shutdown(context.Background()) }) //nolint:errcheck

	return &Server{Jobs: jobs, Notes: notes, UploadDir: filepath.Join(dir, "uploads")}, notes
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%q): %v", rec.Body.String(), err)
	}
}

func TestCreateNote_GetNote_UpdateNote_ConflictOn409(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Routes()

	createBody, _ := json.Marshal(createNoteRequest{Name: "hello", Content: "hi", FileType: "txt"})
	req := httptest.NewRequest(http.MethodPost, "/v1/notes/", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var note noteservice.Note
	decodeJSON(t, rec, &note)
	if note.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", note.Revision)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/notes/"+note.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}

	updateBody, _ := json.Marshal(updateNoteRequest{Content: "stale", ExpectedRevision: 99})
	updateReq := httptest.NewRequest(http.MethodPut, "/v1/notes/"+note.ID, bytes.NewReader(updateBody))
	updateRec := httptest.NewRecorder()
	router.ServeHTTP(updateRec, updateReq)
	if updateRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on stale revision, got %d: %s", updateRec.Code, updateRec.Body.String())
	}
	var errResp errorResponse
	decodeJSON(t, updateRec, &errResp)
	if errResp.Kind != "revision_conflict" {
		t.Fatalf("expected revision_conflict kind, got %+v", errResp)
	}
}

func TestGetNote_UnknownID_Returns404(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/notes/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func multipartJobRequest(t *testing.T, noteID, markerToken string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("fake audio bytes"))
	w.WriteField("note_id", noteID)
	w.WriteField("marker_token", markerToken)
	w.WriteField("launch_source", "manual")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/transcription/jobs/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreateTranscriptionJob_AdmitsAndReturnsView(t *testing.T) {
	srv, notes := newTestServer(t)
	router := srv.Routes()

	note, err := notes.CreateNote("", "voice", "[[tx:m:1]]", "txt")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartJobRequest(t, note.ID, "[[tx:m:1]]"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var view jobengine.View
	decodeJSON(t, rec, &view)
	if view.Status != jobengine.StatusQueued && view.Status != jobengine.StatusRunning {
		t.Fatalf("expected queued or running, got %q", view.Status)
	}
	if !view.CanCancel {
		t.Fatalf("expected can_cancel true for a freshly admitted job")
	}
}

func TestCreateTranscriptionJob_UnknownNote_Returns404AndDeletesUpload(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartJobRequest(t, "does-not-exist", "[[tx:m:1]]"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	entries, err := os.ReadDir(srv.UploadDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read uploads dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected rejected upload to be cleaned up, found %v", entries)
	}
}
