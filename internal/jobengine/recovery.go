package jobengine

import (
	"sort"
	"time"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
)

// recoverAfterRestart implements spec.md §4.3 "Restart recovery". Called
// once from New before the worker pool starts.
func (e *Engine) recoverAfterRestart() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cleaned := make([]string, 0, len(e.snap.Queue))
	for _, id := range e.snap.Queue {
		if _, ok := e.snap.Jobs[id]; ok {
			cleaned = append(cleaned, id)
		}
	}
	e.snap.Queue = cleaned

	cfg := e.settings()
	for _, job := range e.snap.Jobs {
		if job.Status != StatusRunning && job.Status != StatusCancelRequested {
			continue
		}
		job.Status = StatusInterrupted
		job.ErrorCode = "restart_interrupted"
		job.UpdatedAt = kfid.NowISO()

		if cfg.AutoRequeueInterrupted && job.RestartRequeues < 1 && job.Attempts <= cfg.RetryMax {
			job.RestartRequeues++
			job.Status = StatusQueued
			job.AvailableAt = kfid.NowEpoch()
			e.snap.Queue = append(e.snap.Queue, job.ID)
		}
	}
	e.pruneHistoryLocked()
	e.persistLocked("tx.engine.recovered", map[string]any{})
}

// CancelJob implements spec.md §4.3 "Cancellation": a no-op on terminal
// jobs, a direct cancel for queued/interrupted jobs, and a cooperative flag
// for running/cancel_requested jobs.
func (e *Engine) CancelJob(id string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.snap.Jobs[id]
	if !ok {
		return View{}, kfid.NotFound("job not found: " + id)
	}

	if IsTerminal(job.Status) {
		return viewOf(job, e.notes.ResolveNotePath(job.NoteID)), nil
	}

	if job.Status == StatusQueued || job.Status == StatusInterrupted {
		remaining := make([]string, 0, len(e.snap.Queue))
		for _, qid := range e.snap.Queue {
			if qid != id {
				remaining = append(remaining, qid)
			}
		}
		e.snap.Queue = remaining
		job.Status = StatusCancelled
		job.CompletedAt = kfid.NowISO()
		job.UpdatedAt = job.CompletedAt
		e.cleanupAudio(job.AudioPath)
		e.pruneHistoryLocked()
		e.persistLocked("tx.job.cancelled", map[string]any{"job_id": id})
		return viewOf(job, e.notes.ResolveNotePath(job.NoteID)), nil
	}

	job.CancelRequested = true
	job.Status = StatusCancelRequested
	job.UpdatedAt = kfid.NowISO()
	e.persistLocked("tx.job.cancel_requested", map[string]any{"job_id": id})
	return viewOf(job, e.notes.ResolveNotePath(job.NoteID)), nil
}

// ResumeJob transitions an interrupted job back to queued.
func (e *Engine) ResumeJob(id string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.snap.Jobs[id]
	if !ok {
		return View{}, kfid.NotFound("job not found: " + id)
	}
	if job.Status != StatusInterrupted {
		return viewOf(job, e.notes.ResolveNotePath(job.NoteID)), nil
	}

	job.Status = StatusQueued
	job.AvailableAt = kfid.NowEpoch()
	job.UpdatedAt = kfid.NowISO()
	e.snap.Queue = append(e.snap.Queue, id)
	e.persistLocked("tx.job.resumed", map[string]any{"job_id": id})
	return viewOf(job, e.notes.ResolveNotePath(job.NoteID)), nil
}

// ResumeInterrupted resumes every interrupted job and returns how many it
// resumed.
func (e *Engine) ResumeInterrupted() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for id, job := range e.snap.Jobs {
		if job.Status != StatusInterrupted {
			continue
		}
		job.Status = StatusQueued
		job.AvailableAt = kfid.NowEpoch()
		job.UpdatedAt = kfid.NowISO()
		e.snap.Queue = append(e.snap.Queue, id)
		count++
	}
	if count > 0 {
		e.persistLocked("tx.job.resume_interrupted", map[string]any{"count": count})
	}
	return count
}

// terminalTimestamp returns the timestamp spec.md §4.3 "History pruning"
// ranks by: completed_at, falling back to updated_at, then created_at.
func terminalTimestamp(j *Job) time.Time {
	for _, v := range []string{j.CompletedAt, j.UpdatedAt, j.CreatedAt} {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// pruneHistoryLocked applies the two history-pruning rules in order. Must
// be called with e.mu held.
func (e *Engine) pruneHistoryLocked() {
	cfg := e.settings()
	ttl := time.Duration(cfg.HistoryTTLDays) * 24 * time.Hour
	now := time.Now().UTC()

	for id, job := range e.snap.Jobs {
		if !IsTerminal(job.Status) {
			continue
		}
		if now.Sub(terminalTimestamp(job)) > ttl {
			delete(e.snap.Jobs, id)
		}
	}

	terminal := make([]*Job, 0)
	for _, job := range e.snap.Jobs {
		if IsTerminal(job.Status) {
			terminal = append(terminal, job)
		}
	}
	sort.Slice(terminal, func(i, k int) bool {
		return terminalTimestamp(terminal[i]).After(terminalTimestamp(terminal[k]))
	})
	if len(terminal) > cfg.HistoryMaxEntries {
		for _, job := range terminal[cfg.HistoryMaxEntries:] {
			delete(e.snap.Jobs, job.ID)
		}
	}
}
