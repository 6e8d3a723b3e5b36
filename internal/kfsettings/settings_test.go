package kfsettings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if s != Defaults() {
		t.Fatalf("expected defaults, got %+v", s)
	}
}

func TestLoad_CorruptFile_ReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Load(path)
	if s != Defaults() {
		t.Fatalf("expected defaults for corrupt file, got %+v", s)
	}
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := `{"transcription": {
		"max_concurrent_jobs": 999,
		"max_queued_jobs": 0,
		"history_max_entries": 1,
		"history_ttl_days": 10000,
		"retry_max": -5,
		"retry_base_ms": 1
	}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Load(path)

	cases := []struct {
		name string
		got  int
		want int
	}{
		{"max_concurrent_jobs", s.MaxConcurrentJobs, 8},
		{"max_queued_jobs", s.MaxQueuedJobs, 1},
		{"history_max_entries", s.HistoryMaxEntries, 10},
		{"history_ttl_days", s.HistoryTTLDays, 365},
		{"retry_max", s.RetryMax, 0},
		{"retry_base_ms", s.RetryBaseMs, 100},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestLoad_FillsMissingKeysFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := `{"transcription": {"retry_max": 4}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Load(path)
	if s.RetryMax != 4 {
		t.Fatalf("expected retry_max=4, got %d", s.RetryMax)
	}
	if s.MaxConcurrentJobs != Defaults().MaxConcurrentJobs {
		t.Fatalf("expected default max_concurrent_jobs, got %d", s.MaxConcurrentJobs)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	want := Settings{
		MaxConcurrentJobs:      3,
		MaxQueuedJobs:          100,
		HistoryMaxEntries:      500,
		HistoryTTLDays:         30,
		RetryMax:               5,
		RetryBaseMs:            2000,
		AutoRequeueInterrupted: false,
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := Load(path)
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
