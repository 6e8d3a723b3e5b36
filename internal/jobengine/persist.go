package jobengine

import (
	"encoding/json"
	"os"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
)

// snapshot is the on-disk shape of the engine's full state (spec.md §6).
type snapshot struct {
	Version   int             `json:"version"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Jobs      map[string]*Job `json:"jobs"`
	Queue     []string        `json:"queue"`
}

func emptySnapshot() *snapshot {
	now := kfid.NowISO()
	return &snapshot{Version: 1, CreatedAt: now, UpdatedAt: now, Jobs: map[string]*Job{}, Queue: []string{}}
}

// loadSnapshot reads path, tolerating a missing or corrupt file by
// returning a fresh empty snapshot (spec.md §6 "Absent/corrupt file is
// replaced with an empty state on load").
func loadSnapshot(path string) *snapshot {
	raw, err := os.ReadFile(path)
	if err != nil {
		return emptySnapshot()
	}
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return emptySnapshot()
	}
	if s.Jobs == nil {
		s.Jobs = map[string]*Job{}
	}
	if s.Queue == nil {
		s.Queue = []string{}
	}
	return &s
}

// eventRecord is one line of the append-only event log (spec.md §6).
type eventRecord struct {
	TS    float64        `json:"ts"`
	ISO   string         `json:"iso"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// persistLocked rewrites the snapshot atomically and best-effort appends an
// event line. Must be called with e.mu held.
func (e *Engine) persistLocked(event string, data map[string]any) {
	e.snap.UpdatedAt = kfid.NowISO()
	if err := kfid.WriteJSONAtomic(e.snapshotPath, e.snap); err != nil {
		e.logger.Error().Err(err).Msg("jobengine: failed to persist snapshot")
	}
	if event == "" {
		return
	}
	rec := eventRecord{TS: kfid.NowEpoch(), ISO: kfid.NowISO(), Event: event, Data: data}
	if err := kfid.AppendJSONLine(e.eventsPath, rec); err != nil {
		e.logger.Warn().Err(err).Str("event", event).Msg("jobengine: failed to append event log line")
	}
}
