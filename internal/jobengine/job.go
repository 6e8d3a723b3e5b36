// Package jobengine is the durable queue + worker pool that owns
// transcription jobs end to end: admission, bounded-concurrency scheduling,
// exponential-backoff retries, cooperative cancellation, restart recovery,
// and history pruning (spec.md §4.3).
package jobengine

// Status is one of the job lifecycle states (spec.md §3).
type Status string

const (
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusCancelRequested Status = "cancel_requested"
	StatusCancelled       Status = "cancelled"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusOrphaned        Status = "orphaned"
	StatusInterrupted     Status = "interrupted"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusOrphaned:  true,
	StatusCancelled: true,
}

// IsTerminal reports whether status is one of the four terminal states.
func IsTerminal(s Status) bool { return terminalStatuses[s] }

// LastResult mirrors noteservice.ApplyResult for storage in a job record
// without requiring callers of this package to import noteservice.
type LastResult struct {
	Status   string `json:"status"`
	NoteID   string `json:"note_id"`
	NotePath string `json:"note_path,omitempty"`
	Revision int    `json:"revision,omitempty"`
}

// Job is one submitted transcription job (spec.md §3 "Transcription job record").
type Job struct {
	ID              string      `json:"id"`
	Status          Status      `json:"status"`
	CreatedAt       string      `json:"created_at"`
	UpdatedAt       string      `json:"updated_at"`
	StartedAt       string      `json:"started_at,omitempty"`
	CompletedAt     string      `json:"completed_at,omitempty"`
	AvailableAt     float64     `json:"available_at"`
	Attempts        int         `json:"attempts"`
	RestartRequeues int         `json:"restart_requeues"`
	NoteID          string      `json:"note_id"`
	MarkerToken     string      `json:"marker_token"`
	AudioPath       string      `json:"audio_path"`
	SourceFilename  string      `json:"source_filename"`
	LaunchSource    string      `json:"launch_source"`
	TranscriptText  string      `json:"transcript_text,omitempty"`
	LastResult      *LastResult `json:"last_result,omitempty"`
	DurationMs      int         `json:"duration_ms,omitempty"`
	ErrorCode       string      `json:"error_code,omitempty"`
	Error           string      `json:"error,omitempty"`
	CancelRequested bool        `json:"cancel_requested"`
	NotePath        string      `json:"note_path,omitempty"`
	NoteRevision    int         `json:"note_revision,omitempty"`
}

// View is a Job enriched with the engine's derived capability flags and a
// freshly resolved note path, matching what callers actually query.
type View struct {
	Job
	CanCancel bool `json:"can_cancel"`
	CanResume bool `json:"can_resume"`
	CanCopy   bool `json:"can_copy"`
}

func viewOf(j *Job, freshNotePath string) View {
	v := View{Job: *j}
	if freshNotePath != "" {
		v.NotePath = freshNotePath
	}
	switch j.Status {
	case StatusQueued, StatusRunning, StatusCancelRequested, StatusInterrupted:
		v.CanCancel = true
	}
	v.CanResume = j.Status == StatusInterrupted
	v.CanCopy = j.TranscriptText != ""
	return v
}
