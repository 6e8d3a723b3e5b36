package httpapi

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
)

// pendingUpload owns a saved audio file until the caller either commits it
// (job admission succeeded — the engine now owns cleanup) or cleans it up
// (admission was rejected). This is the boundary contract spec.md §9 asks
// for: the engine never takes ownership of an upload before admitting it,
// so whoever saves the file is responsible for deleting it on failure.
type pendingUpload struct {
	path      string
	committed bool
}

func saveUpload(dir string, file multipart.File, header *multipart.FileHeader) (*pendingUpload, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := kfid.New() + filepath.Ext(header.Filename)
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &pendingUpload{path: path}, nil
}

// commit marks the upload as owned by the job engine; cleanup becomes a no-op.
func (u *pendingUpload) commit() { u.committed = true }

// cleanup removes the saved file unless commit was called.
func (u *pendingUpload) cleanup() {
	if u.committed {
		return
	}
	os.Remove(u.path)
}
