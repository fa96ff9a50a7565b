package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/evalgate/evalgate/internal/domain/task"
)

// Worker defaults.
const (
	// DefaultMaxConcurrent bounds tasks executing at once.
	DefaultMaxConcurrent = 3
	// DefaultPollInterval is the sleep between empty polls.
	DefaultPollInterval = 2 * time.Second
)

// WorkerConfig tunes the polling worker.
type WorkerConfig struct {
	// MaxConcurrent bounds in-flight tasks (default 3).
	MaxConcurrent int
	// PollInterval is the sleep when no PENDING tasks exist (default 2s).
	PollInterval time.Duration
	// TaskTimeout, when positive, bounds each task's execution; on expiry
	// the task is cancelled.
	TaskTimeout time.Duration
}

// Worker polls the task store for PENDING tasks and executes them under a
// concurrency bound. A panic or failure in one task never affects its
// siblings.
type Worker struct {
	tasks  *TaskService
	store  task.Store
	cfg    WorkerConfig
	logger *slog.Logger
}

// NewWorker creates a polling worker. Zero config fields take defaults.
func NewWorker(tasks *TaskService, store task.Store, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{tasks: tasks, store: store, cfg: cfg, logger: logger}
}

// Run polls until the context ends, then waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"max_concurrent", w.cfg.MaxConcurrent,
		"poll_interval", w.cfg.PollInterval)

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.cfg.MaxConcurrent)

	for ctx.Err() == nil {
		dispatched, err := w.pollOnce(ctx, &wg, sem)
		if err != nil {
			w.logger.Warn("poll failed", "error", err)
		}
		if dispatched == 0 {
			w.sleep(ctx)
		}
	}

	wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// pollOnce fetches up to MaxConcurrent pending tasks and dispatches each
// under the semaphore. Returns how many were dispatched.
func (w *Worker) pollOnce(ctx context.Context, wg *sync.WaitGroup, sem chan struct{}) (int, error) {
	pending, err := w.store.ListByStatus(ctx, task.StatusPending, w.cfg.MaxConcurrent)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, t := range pending {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return dispatched, nil
		}
		dispatched++
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			w.execute(ctx, id)
		}(t.ID)
	}
	return dispatched, nil
}

// execute runs one task with panic isolation and the optional per-task
// timeout. A CAS conflict means another worker claimed the task first.
func (w *Worker) execute(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked", "task_id", id, "panic", r)
			now := time.Now().UTC()
			if err := w.store.Transition(context.Background(), id, task.StatusRunning, task.StatusFailed,
				task.TransitionFields{CompletedAt: &now, Error: "task panicked"}); err != nil {
				w.logger.Warn("panic transition rejected", "task_id", id, "error", err)
			}
		}
	}()

	runCtx := ctx
	if w.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.TaskTimeout)
		defer cancel()
	}

	_, err := w.tasks.Execute(runCtx, id)
	switch {
	case err == nil:
	case errors.Is(err, task.ErrConflict):
		w.logger.Debug("task claimed elsewhere", "task_id", id)
	case errors.Is(err, ErrTaskCancelled):
		w.logger.Info("task cancelled", "task_id", id)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		w.logger.Warn("task timed out", "task_id", id, "timeout", w.cfg.TaskTimeout)
		if cancelErr := w.tasks.Cancel(context.Background(), id); cancelErr != nil {
			w.logger.Warn("timeout cancellation rejected", "task_id", id, "error", cancelErr)
		}
	default:
		w.logger.Warn("task failed", "task_id", id, "error", err)
	}
}

// sleep waits a poll interval or until the context ends.
func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
