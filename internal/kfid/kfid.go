// Package kfid holds the small set of utilities shared by the note index,
// note service, and job engine: opaque id generation, ISO-8601 UTC
// timestamps, and an atomic temp-then-rename JSON writer.
package kfid

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// New returns a new opaque hex identifier suitable for note ids and job ids.
func New() string {
	return uuid.New().String()
}

// NowISO returns the current instant formatted as ISO-8601 UTC.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NowEpoch returns the current wall-clock time as epoch seconds.
func NowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// WriteJSONAtomic marshals v as indented JSON and writes it to path by
// writing to a sibling temp file and renaming over the destination. This
// guarantees readers never observe a partially written document.
func WriteJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// AppendJSONLine appends one JSON-encoded object followed by a newline to
// the file at path, creating parent directories and the file as needed.
// Writes are small enough to be atomic on POSIX, matching the event log's
// append-only contract.
func AppendJSONLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}
