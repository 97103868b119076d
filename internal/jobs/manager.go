// Package jobs runs long archive operations in the background and reports
// their progress as catalog events.
package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/pkg/dto"
)

type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Func is the work of a job. Its result is kept on the job and sent with the
// job_finished event.
type Func func(ctx context.Context, progress catalog.Progress) (any, error)

// Job is a point-in-time copy of a job's state.
type Job struct {
	ID         string
	Kind       Kind
	Status     Status
	Stage      string
	Done       int
	Total      int
	Result     any
	Err        error
	CreatedAt  time.Time
	FinishedAt time.Time
}

const (
	maxFinished      = 100
	progressInterval = 200 * time.Millisecond
)

type job struct {
	Job
	lastEmit time.Time
}

// Manager owns the goroutines of running jobs.
type Manager struct {
	notifier catalog.Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*job
}

func NewManager(notifier catalog.Notifier) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*job),
	}
}

// Start runs fn in its own goroutine and returns the new job.
func (m *Manager) Start(kind Kind, fn Func) Job {
	j := &job{Job: Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}}

	m.mu.Lock()
	m.jobs[j.ID] = j
	m.pruneLocked()
	snapshot := j.Job
	m.mu.Unlock()

	observability.ActiveJobs.Inc()
	slog.Info("job started", "job_id", j.ID, "kind", kind)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer observability.ActiveJobs.Dec()

		result, err := fn(m.ctx, func(stage string, done, total int) {
			m.progress(j, stage, done, total)
		})
		m.finish(j, result, err)
	}()
	return snapshot
}

func (m *Manager) progress(j *job, stage string, done, total int) {
	m.mu.Lock()
	now := time.Now()
	emit := done >= total || stage != j.Stage || now.Sub(j.lastEmit) >= progressInterval
	j.Stage, j.Done, j.Total = stage, done, total
	if emit {
		j.lastEmit = now
	}
	id := j.ID
	m.mu.Unlock()

	if emit {
		m.notify(&dto.WSEvent{
			Type:      dto.EventJobProgress,
			JobID:     id,
			Status:    string(StatusRunning),
			Data:      dto.JobProgress{Stage: stage, Done: done, Total: total},
			Timestamp: now.UTC().Format(time.RFC3339),
		})
	}
}

func (m *Manager) finish(j *job, result any, err error) {
	m.mu.Lock()
	j.Result = result
	j.Err = err
	j.FinishedAt = time.Now().UTC()
	switch {
	case err == nil:
		j.Status = StatusSucceeded
	case m.ctx.Err() != nil:
		j.Status = StatusCanceled
	default:
		j.Status = StatusFailed
	}
	snapshot := j.Job
	m.mu.Unlock()

	if err != nil {
		slog.Error("job failed", "job_id", j.ID, "kind", j.Kind, "status", snapshot.Status, "error", err)
	} else {
		slog.Info("job finished", "job_id", j.ID, "kind", j.Kind, "duration", snapshot.FinishedAt.Sub(snapshot.CreatedAt))
	}
	m.notify(&dto.WSEvent{
		Type:      dto.EventJobFinished,
		JobID:     snapshot.ID,
		Status:    string(snapshot.Status),
		Data:      ToResponse(snapshot),
		Timestamp: snapshot.FinishedAt.Format(time.RFC3339),
	})
}

func (m *Manager) notify(ev *dto.WSEvent) {
	if m.notifier != nil {
		m.notifier.Notify(ev)
	}
}

// pruneLocked drops the oldest finished jobs beyond maxFinished.
func (m *Manager) pruneLocked() {
	var finished []*job
	for _, j := range m.jobs {
		if j.Status != StatusRunning {
			finished = append(finished, j)
		}
	}
	if len(finished) <= maxFinished {
		return
	}
	sort.Slice(finished, func(a, b int) bool { return finished[a].FinishedAt.Before(finished[b].FinishedAt) })
	for _, j := range finished[:len(finished)-maxFinished] {
		delete(m.jobs, j.ID)
	}
}

func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.Job, true
}

// List returns all known jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Job)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// Wait blocks until every running job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// StopAll cancels running jobs at their next cancellation point and waits for
// them to return.
func (m *Manager) StopAll() {
	m.cancel()
	m.wg.Wait()
}

// ToResponse converts a job to its API form.
func ToResponse(j Job) dto.JobResponse {
	resp := dto.JobResponse{
		ID:        j.ID,
		Kind:      string(j.Kind),
		Status:    string(j.Status),
		Stage:     j.Stage,
		Done:      j.Done,
		Total:     j.Total,
		Result:    j.Result,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	}
	if !j.FinishedAt.IsZero() {
		resp.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	if j.Err != nil {
		resp.Error = j.Err.Error()
		resp.ErrorCode = string(apperr.CodeOf(j.Err))
	}
	return resp
}
