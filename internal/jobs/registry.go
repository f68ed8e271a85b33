package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/papercast-labs/papercast-core/internal/config"
)

// Status is the lifecycle stage of one synthesis run.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Snapshot is a copy of a job's state, safe to hand to status polls.
type Snapshot struct {
	RunID      string
	DOI        string
	Status     Status
	Progress   int
	Total      int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Terminal reports whether the run has finished, successfully or not.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusFailed
}

type job struct {
	runID      string
	status     Status
	progress   int
	total      int
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// RunFunc is the body of a synthesis run.
type RunFunc func(ctx context.Context, runID string) error

// Registry supervises synthesis runs: one live run per document, spawned
// into a bounded pool, with terminal state kept for status polls. The
// compare-and-swap in TryStart is what prevents two concurrent triggers
// from both starting a worker for the same document.
type Registry struct {
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sema   chan struct{}

	mu    sync.Mutex
	jobs  map[string]*job
	clock func() time.Time
}

func NewRegistry(parent context.Context, cfg config.JobsConfig, logger *slog.Logger) *Registry {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Registry{
		log:    logger.With(slog.String("component", "jobs")),
		ctx:    ctx,
		cancel: cancel,
		sema:   make(chan struct{}, cfg.Concurrency),
		jobs:   make(map[string]*job),
		clock:  time.Now,
	}
}

// TryStart registers and spawns a run for the document unless one is
// already live. Returns the run id and whether a new run was started.
// A finished run, failed or done, does not block a later start.
func (r *Registry) TryStart(doi string, total int, fn RunFunc) (string, bool) {
	r.mu.Lock()
	if existing, ok := r.jobs[doi]; ok && existing.status == StatusRunning {
		r.mu.Unlock()
		return existing.runID, false
	}
	j := &job{
		runID:     uuid.NewString(),
		status:    StatusRunning,
		total:     total,
		startedAt: r.clock().UTC(),
	}
	r.jobs[doi] = j
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case r.sema <- struct{}{}:
			defer func() { <-r.sema }()
		case <-r.ctx.Done():
			r.finish(doi, j.runID, r.ctx.Err())
			return
		}
		err := fn(r.ctx, j.runID)
		r.finish(doi, j.runID, err)
	}()
	return j.runID, true
}

func (r *Registry) finish(doi, runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[doi]
	if !ok || j.runID != runID {
		return
	}
	j.finishedAt = r.clock().UTC()
	if err != nil {
		j.status = StatusFailed
		j.err = err
		r.log.Error("synthesis run failed",
			slog.String("doi", doi),
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		return
	}
	j.status = StatusDone
	r.log.Info("synthesis run completed",
		slog.String("doi", doi),
		slog.String("run_id", runID))
}

// SetProgress records how many clips the run has produced so far.
func (r *Registry) SetProgress(doi, runID string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[doi]; ok && j.runID == runID {
		j.progress = progress
	}
}

// Snapshot returns the current state of the document's most recent run.
func (r *Registry) Snapshot(doi string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[doi]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		RunID:      j.runID,
		DOI:        doi,
		Status:     j.status,
		Progress:   j.progress,
		Total:      j.total,
		Err:        j.err,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}, true
}

// Close stops accepting work and waits for in-flight runs.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
