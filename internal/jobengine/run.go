package jobengine

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
	"github.com/miche1696/kefi-notetaker/internal/noteservice"
)

// workerLoop is one of the N worker goroutines (spec.md §4.3 "Scheduling
// model"). It polls for an eligible job, runs it to completion, and repeats
// until ctx is cancelled.
func (e *Engine) workerLoop(ctx context.Context, workerIndex int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok := e.leaseNext(workerIndex)
		if !ok {
			select {
			case <-time.After(workerPollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}
		e.runJob(jobID)
	}
}

// leaseNext scans the ready-queue in FIFO order, dropping stale entries,
// skipping not-yet-eligible ones, and leasing the first eligible job to
// workerIndex. Worker workerIndex is only eligible to lease while
// workerIndex < max_concurrent_jobs.
func (e *Engine) leaseNext(workerIndex int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.settings()
	if workerIndex >= cfg.MaxConcurrentJobs {
		return "", false
	}

	now := kfid.NowEpoch()
	remaining := make([]string, 0, len(e.snap.Queue))
	leased := ""
	for _, id := range e.snap.Queue {
		job, exists := e.snap.Jobs[id]
		if !exists || job.Status != StatusQueued {
			continue // drop: no longer a live queued job
		}
		if leased == "" && job.AvailableAt <= now {
			leased = id
			continue // remove from queue: it's being leased
		}
		remaining = append(remaining, id)
	}
	e.snap.Queue = remaining
	if leased == "" {
		return "", false
	}

	job := e.snap.Jobs[leased]
	job.Status = StatusRunning
	job.StartedAt = kfid.NowISO()
	job.UpdatedAt = job.StartedAt
	job.Attempts++
	job.CancelRequested = false
	e.persistLocked("tx.job.started", map[string]any{"job_id": leased, "attempts": job.Attempts})
	return leased, true
}

// runJob executes spec.md §4.3 "Run" steps 1-6 for jobID.
func (e *Engine) runJob(jobID string) {
	e.mu.Lock()
	job, ok := e.snap.Jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	audioPath := job.AudioPath
	noteID := job.NoteID
	markerToken := job.MarkerToken
	cancelledBeforeStart := job.CancelRequested
	e.mu.Unlock()

	if cancelledBeforeStart {
		e.finishCancelled(jobID)
		return
	}

	result, transcribeErr := e.transcriber.Transcribe(audioPath)

	e.mu.Lock()
	job, ok = e.snap.Jobs[jobID]
	stillCancelled := ok && job.CancelRequested
	e.mu.Unlock()
	if stillCancelled {
		e.finishCancelled(jobID)
		return
	}

	if transcribeErr != nil {
		e.handleFailure(jobID, transcribeErr)
		return
	}

	applyResult := e.notes.ReplaceMarker(noteID, markerToken, result.Text)

	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok = e.snap.Jobs[jobID]
	if !ok {
		return
	}
	job.DurationMs = result.DurationMs
	job.TranscriptText = result.Text
	job.LastResult = &LastResult{
		Status:   string(applyResult.Status),
		NoteID:   applyResult.NoteID,
		NotePath: applyResult.NotePath,
		Revision: applyResult.Revision,
	}
	job.CompletedAt = kfid.NowISO()
	job.UpdatedAt = job.CompletedAt
	job.NotePath = applyResult.NotePath
	job.NoteRevision = applyResult.Revision

	var event string
	switch applyResult.Status {
	case noteservice.StatusApplied:
		job.Status = StatusCompleted
		event = "tx.job.completed"
	case noteservice.StatusMarkerMissing:
		job.Status = StatusOrphaned
		job.ErrorCode = "marker_missing"
		event = "tx.job.orphaned"
	case noteservice.StatusNoteDeleted:
		job.Status = StatusFailed
		job.ErrorCode = "target_note_missing"
		event = "tx.job.failed"
	}
	e.cleanupAudio(job.AudioPath)
	e.pruneHistoryLocked()
	e.persistLocked(event, map[string]any{"job_id": jobID, "status": string(job.Status)})
	e.logger.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("jobengine: job finished")
}

// finishCancelled transitions jobID to cancelled, cleans up its audio file,
// and persists. Safe to call if the job has since disappeared (pruned).
func (e *Engine) finishCancelled(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.snap.Jobs[jobID]
	if !ok {
		return
	}
	job.Status = StatusCancelled
	job.CompletedAt = kfid.NowISO()
	job.UpdatedAt = job.CompletedAt
	e.cleanupAudio(job.AudioPath)
	e.pruneHistoryLocked()
	e.persistLocked("tx.job.cancelled", map[string]any{"job_id": jobID})
}

// handleFailure classifies an error from the Transcriber and either
// re-queues the job with exponential backoff (transient, attempts left) or
// fails it terminally with a spliced placeholder (spec.md §4.3 "Failure
// handling").
func (e *Engine) handleFailure(jobID string, err error) {
	e.mu.Lock()
	job, ok := e.snap.Jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	cfg := e.settings()
	attempts := job.Attempts
	transient := e.isTransient(err)

	if transient && attempts <= cfg.RetryMax {
		delayMs := cfg.RetryBaseMs * (1 << uint(attempts-1))
		job.Status = StatusQueued
		job.AvailableAt = kfid.NowEpoch() + float64(delayMs)/1000.0
		job.ErrorCode = "transient_error"
		job.Error = err.Error()
		job.UpdatedAt = kfid.NowISO()
		e.snap.Queue = append(e.snap.Queue, jobID)
		e.persistLocked("tx.job.retry", map[string]any{"job_id": jobID, "attempts": attempts, "delay_ms": delayMs})
		e.logger.Warn().Str("job_id", jobID).Int("attempts", attempts).Err(err).Msg("jobengine: transient failure, retrying")
		e.mu.Unlock()
		return
	}

	noteID := job.NoteID
	markerToken := job.MarkerToken
	e.mu.Unlock()

	placeholder := failurePlaceholder(err)
	e.notes.ReplaceMarker(noteID, markerToken, placeholder)

	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok = e.snap.Jobs[jobID]
	if !ok {
		return
	}
	job.Status = StatusFailed
	job.ErrorCode = "transcription_error"
	job.Error = err.Error()
	job.CompletedAt = kfid.NowISO()
	job.UpdatedAt = job.CompletedAt
	e.cleanupAudio(job.AudioPath)
	e.pruneHistoryLocked()
	e.persistLocked("tx.job.failed", map[string]any{"job_id": jobID, "error_code": "transcription_error"})
	e.logger.Error().Str("job_id", jobID).Err(err).Msg("jobengine: terminal transcription failure")
}

// failurePlaceholder builds the user-facing splice text for a terminal
// transcription failure (spec.md §4.3): one line, truncated to 180 runes
// with an ellipsis.
func failurePlaceholder(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	runes := []rune(msg)
	if len(runes) > 180 {
		msg = string(runes[:180]) + "…"
	}
	return "[Transcription failed: " + msg + "]"
}

// cleanupAudio removes the temp audio file, ignoring a missing file.
func (e *Engine) cleanupAudio(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn().Str("path", path).Err(err).Msg("jobengine: failed to remove temp audio")
	}
}
