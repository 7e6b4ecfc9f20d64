// Package task runs long conversation turns in the background and pushes
// their lifecycle (queued, progress, complete, error) to the originating
// client over the realtime layer.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/realtime"
)

// Status represents the lifecycle state of a background task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Task is one background conversation turn.
type Task struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Status    Status             `json:"status"`
	Progress  int                `json:"progress"` // 0-100
	Result    *envelope.Response `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	DoneAt    time.Time          `json:"done_at,omitempty"`
}

// Fn is the work a task performs. The progress callback accepts 0-100 and
// may be called from any goroutine.
type Fn func(ctx context.Context, progress func(pct int, msg string)) (envelope.Response, error)

// ExecutorConfig configures the background executor.
type ExecutorConfig struct {
	Workers          int
	EstimatedSeconds int
	Registry         *realtime.Registry
	Logger           *slog.Logger
}

// Executor runs background tasks on a bounded worker pool and reports
// their lifecycle as push envelopes. Push delivery is best-effort: a
// disconnected client simply misses the events; the task state remains
// queryable.
type Executor struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	sem       chan struct{}
	estimated int
	registry  *realtime.Registry
	logger    *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EstimatedSeconds <= 0 {
		cfg.EstimatedSeconds = 30
	}
	return &Executor{
		tasks:     make(map[string]*Task),
		sem:       make(chan struct{}, cfg.Workers),
		estimated: cfg.EstimatedSeconds,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
	}
}

// Submit queues a task for the given user and immediately pushes a
// task_queued envelope. The returned ID is also usable for polling.
func (e *Executor) Submit(ctx context.Context, userID string, fn Fn) string {
	id := uuid.NewString()
	t := &Task{
		ID:        id,
		UserID:    userID,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
	e.mu.Lock()
	e.tasks[id] = t
	e.mu.Unlock()

	e.logger.Info("background task submitted", "id", id, "user", userID)
	e.registry.Send(userID, envelope.BuildPush(envelope.PushTaskQueued, map[string]any{
		"task_id":           id,
		"estimated_seconds": e.estimated,
	}))

	go e.run(ctx, t, fn)
	return id
}

func (e *Executor) run(ctx context.Context, t *Task, fn Fn) {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	e.mu.Lock()
	t.Status = StatusRunning
	e.mu.Unlock()

	progress := func(pct int, msg string) {
		e.mu.Lock()
		t.Progress = pct
		e.mu.Unlock()
		e.registry.Send(t.UserID, envelope.BuildPush(envelope.PushTaskProgress, map[string]any{
			"task_id":  t.ID,
			"progress": pct,
			"message":  msg,
		}))
	}

	result, err := fn(ctx, progress)

	e.mu.Lock()
	t.DoneAt = time.Now()
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
	} else {
		t.Status = StatusComplete
		t.Result = &result
		t.Progress = 100
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("background task failed", "id", t.ID, "err", err)
		e.registry.Send(t.UserID, envelope.BuildPush(envelope.PushError, map[string]any{
			"detail": err.Error(),
		}))
		return
	}

	e.logger.Info("background task completed", "id", t.ID)
	e.registry.Send(t.UserID, envelope.BuildPush(envelope.PushComplete, map[string]any{
		"response": result,
	}))
}

// Get returns a copy of the task's current state.
func (e *Executor) Get(id string) (Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Clean removes finished tasks older than maxAge and returns the count.
func (e *Executor) Clean(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, t := range e.tasks {
		if (t.Status == StatusComplete || t.Status == StatusFailed) && t.DoneAt.Before(cutoff) {
			delete(e.tasks, id)
			removed++
		}
	}
	return removed
}
