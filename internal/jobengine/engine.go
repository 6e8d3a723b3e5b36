package jobengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
	"github.com/miche1696/kefi-notetaker/internal/kfsettings"
	"github.com/miche1696/kefi-notetaker/internal/noteservice"
	"github.com/miche1696/kefi-notetaker/internal/transcriber"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const workerPollInterval = 200 * time.Millisecond

// NoteService is the narrow slice of *noteservice.Service the engine needs:
// resolving a note's current path for display, and applying the
// marker-replacement protocol once a transcript is ready.
type NoteService interface {
	ResolveNotePath(noteID string) string
	ReplaceMarker(noteID, markerToken, replacementText string) noteservice.ApplyResult
}

// Transcriber is the opaque audio-to-text collaborator.
type Transcriber interface {
	Transcribe(audioPath string) (transcriber.Result, error)
}

// Engine is the durable queue + worker pool (spec.md §4.3).
type Engine struct {
	notes        NoteService
	transcriber  Transcriber
	settingsPath string
	snapshotPath string
	eventsPath   string
	workerSlots  int
	logger       zerolog.Logger
	isTransient  func(error) bool

	mu   sync.Mutex
	snap *snapshot

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Options configures New.
type Options struct {
	Notes        NoteService
	Transcriber  Transcriber
	SettingsPath string
	SnapshotPath string
	EventsPath   string
	WorkerSlots  int
	// IsTransient classifies an error from Transcriber as retryable. Callers
	// normally pass transcriber.IsTransient; it is injected here so this
	// package does not need to import the transcriber package.
	IsTransient func(error) bool
	// Logger defaults to the global zerolog logger when nil.
	Logger *zerolog.Logger
}

// New constructs an Engine, recovers from any prior snapshot (spec.md §4.3
// "Restart recovery"), and starts its worker pool.
func New(opts Options) *Engine {
	slots := opts.WorkerSlots
	if slots <= 0 {
		slots = 1
	}
	if slots > 16 {
		slots = 16
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	e := &Engine{
		notes:        opts.Notes,
		transcriber:  opts.Transcriber,
		settingsPath: opts.SettingsPath,
		snapshotPath: opts.SnapshotPath,
		eventsPath:   opts.EventsPath,
		workerSlots:  slots,
		logger:       logger,
		isTransient:  opts.IsTransient,
		snap:         loadSnapshot(opts.SnapshotPath),
	}
	if e.isTransient == nil {
		e.isTransient = func(error) bool { return false }
	}

	e.recoverAfterRestart()

	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	e.group = group
	for i := 0; i < slots; i++ {
		workerIndex := i
		group.Go(func() error {
			e.workerLoop(gctx, workerIndex)
			return nil
		})
	}
	return e
}

// Shutdown cancels the worker pool's context and waits for every worker
// goroutine to return.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) settings() kfsettings.Settings {
	return kfsettings.Load(e.settingsPath)
}

func activeStatuses() map[Status]bool {
	return map[Status]bool{
		StatusQueued:          true,
		StatusRunning:         true,
		StatusCancelRequested: true,
		StatusInterrupted:     true,
	}
}

// CreateJob admits a new job (spec.md §4.3 "Admission").
func (e *Engine) CreateJob(audioPath, sourceFilename, noteID, markerToken, launchSource string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := activeStatuses()
	count := 0
	for _, j := range e.snap.Jobs {
		if active[j.Status] {
			count++
		}
	}
	cfg := e.settings()
	if count >= cfg.MaxQueuedJobs {
		return View{}, kfid.QueueFull()
	}

	notePath := e.notes.ResolveNotePath(noteID)
	if notePath == "" {
		return View{}, kfid.NotFound("note not found: " + noteID)
	}

	now := kfid.NowISO()
	job := &Job{
		ID:             kfid.New(),
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
		AvailableAt:    kfid.NowEpoch(),
		Attempts:       0,
		NoteID:         noteID,
		MarkerToken:    markerToken,
		AudioPath:      audioPath,
		SourceFilename: sourceFilename,
		LaunchSource:   launchSource,
		NotePath:       notePath,
	}
	e.snap.Jobs[job.ID] = job
	e.snap.Queue = append(e.snap.Queue, job.ID)

	e.pruneHistoryLocked()
	e.persistLocked("tx.job.created", map[string]any{"job_id": job.ID, "note_id": noteID})
	e.logger.Info().Str("job_id", job.ID).Str("note_id", noteID).Msg("jobengine: job created")
	return viewOf(job, notePath), nil
}

// GetJob returns the current view of job id.
func (e *Engine) GetJob(id string) (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.snap.Jobs[id]
	if !ok {
		return View{}, false
	}
	return viewOf(job, e.notes.ResolveNotePath(job.NoteID)), true
}

// ListJobs returns every job, newest created_at first.
func (e *Engine) ListJobs() []View {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]View, 0, len(e.snap.Jobs))
	for _, j := range e.snap.Jobs {
		out = append(out, viewOf(j, e.notes.ResolveNotePath(j.NoteID)))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt > out[k].CreatedAt })
	return out
}
