// Package kfsettings loads the transcription engine's tunables from the
// settings file described in spec.md §6, coercing and clamping values into
// their declared ranges rather than failing closed the way the teacher's
// mcpserver/config loader does — the contract here is "always produce a
// usable Settings", since a malformed settings file must not prevent the
// job engine from starting.
package kfsettings

import (
	"encoding/json"
	"os"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
	"github.com/rs/zerolog/log"
)

// Settings is the read-only view the Job Engine consults (spec.md §3).
type Settings struct {
	MaxConcurrentJobs     int  `json:"max_concurrent_jobs"`
	MaxQueuedJobs         int  `json:"max_queued_jobs"`
	HistoryMaxEntries     int  `json:"history_max_entries"`
	HistoryTTLDays        int  `json:"history_ttl_days"`
	RetryMax              int  `json:"retry_max"`
	RetryBaseMs           int  `json:"retry_base_ms"`
	AutoRequeueInterrupted bool `json:"auto_requeue_interrupted"`
}

// Defaults mirror the original service's fallbacks.
func Defaults() Settings {
	return Settings{
		MaxConcurrentJobs:      2,
		MaxQueuedJobs:          50,
		HistoryMaxEntries:      200,
		HistoryTTLDays:         7,
		RetryMax:               2,
		RetryBaseMs:            1500,
		AutoRequeueInterrupted: true,
	}
}

// document mirrors the on-disk shape: { "transcription": { ...Settings } }.
type document struct {
	Transcription json.RawMessage `json:"transcription"`
}

// clampRange describes a field's declared [min, max] range from spec.md §3.
type clampRange struct{ min, max int }

var ranges = map[string]clampRange{
	"max_concurrent_jobs": {1, 8},
	"max_queued_jobs":     {1, 500},
	"history_max_entries": {10, 5000},
	"history_ttl_days":    {1, 365},
	"retry_max":           {0, 10},
	"retry_base_ms":       {100, 60000},
}

func clamp(name string, v int) int {
	r, ok := ranges[name]
	if !ok {
		return v
	}
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}

// Load reads path and returns a fully clamped Settings. A missing or
// corrupt file yields Defaults(); present-but-partial documents are filled
// from Defaults() field by field before clamping.
func Load(path string) Settings {
	s := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("kfsettings: failed to read settings file, using defaults")
		}
		return s
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("kfsettings: corrupt settings file, using defaults")
		return s
	}
	if len(doc.Transcription) == 0 {
		return s
	}

	// Unmarshal onto the defaulted struct so missing keys keep their default.
	if err := json.Unmarshal(doc.Transcription, &s); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("kfsettings: corrupt transcription block, using defaults")
		return Defaults()
	}

	s.MaxConcurrentJobs = clamp("max_concurrent_jobs", s.MaxConcurrentJobs)
	s.MaxQueuedJobs = clamp("max_queued_jobs", s.MaxQueuedJobs)
	s.HistoryMaxEntries = clamp("history_max_entries", s.HistoryMaxEntries)
	s.HistoryTTLDays = clamp("history_ttl_days", s.HistoryTTLDays)
	s.RetryMax = clamp("retry_max", s.RetryMax)
	s.RetryBaseMs = clamp("retry_base_ms", s.RetryBaseMs)
	return s
}

// Save writes s back to path in the §6 wire format, atomically.
func Save(path string, s Settings) error {
	doc := struct {
		Transcription Settings `json:"transcription"`
	}{Transcription: s}
	return kfid.WriteJSONAtomic(path, doc)
}
