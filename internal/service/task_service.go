package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evalgate/evalgate/internal/adapter/outbound/dataset"
	"github.com/evalgate/evalgate/internal/adapter/outbound/sink"
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/scorer"
	"github.com/evalgate/evalgate/internal/domain/task"
	"github.com/evalgate/evalgate/internal/registry"
)

// ErrTaskCancelled is returned by Execute when the task was cancelled
// while the engine was running.
var ErrTaskCancelled = errors.New("task cancelled")

// cancelPollInterval is how often a running execution re-reads the task
// row to observe an external cancellation.
const cancelPollInterval = 500 * time.Millisecond

// ComponentConfig selects a registered factory and its settings.
type ComponentConfig struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// DatasetConfig selects a dataset loader.
type DatasetConfig struct {
	// Type is "jsonl" or "indexed_csv".
	Type string `json:"type"`
	// Path is the dataset file (JSONL) or CSV index.
	Path string `json:"path"`
	// BaseDir resolves relative file references for indexed CSV datasets.
	BaseDir string `json:"base_dir,omitempty"`
	// EntityType, OperationType, and TestIDs filter indexed CSV rows.
	EntityType    string   `json:"entity_type,omitempty"`
	OperationType string   `json:"operation_type,omitempty"`
	TestIDs       []string `json:"test_ids,omitempty"`
	// ActualSuffix enables offline mode for indexed CSV datasets.
	ActualSuffix string `json:"actual_suffix,omitempty"`
}

// TaskConfig is the serialised evaluation configuration a task carries.
type TaskConfig struct {
	Dataset     DatasetConfig     `json:"dataset"`
	Adapter     *ComponentConfig  `json:"adapter,omitempty"`
	Scorers     []ComponentConfig `json:"scorers"`
	Sinks       []ComponentConfig `json:"sinks,omitempty"`
	Model       string            `json:"model,omitempty"`
	Concurrency int               `json:"concurrency,omitempty"`
}

// TaskService manages the durable task lifecycle: creation, foreground
// execution, and cancellation. All status moves are compare-and-swap
// transitions through the task store, so concurrent workers can never
// double-claim a task.
type TaskService struct {
	store   task.Store
	engine  *EvalService
	logger  *slog.Logger
	metrics *Metrics
}

// NewTaskService creates a task service. logger may be nil; metrics may
// be nil to disable instrumentation.
func NewTaskService(store task.Store, engine *EvalService, logger *slog.Logger, metrics *Metrics) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{store: store, engine: engine, logger: logger, metrics: metrics}
}

// Create validates the config, allocates an id, and persists the task as
// PENDING.
func (s *TaskService) Create(ctx context.Context, evalName string, config json.RawMessage, metadata map[string]any) (*task.Task, error) {
	var cfg TaskConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("parse task config: %w", err)
	}
	if len(cfg.Scorers) == 0 {
		return nil, fmt.Errorf("task config has no scorers")
	}

	t := &task.Task{
		ID:        uuid.NewString(),
		EvalName:  evalName,
		Config:    config,
		Status:    task.StatusPending,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TasksTotal.WithLabelValues(string(task.StatusPending)).Inc()
	}
	s.logger.Info("task created", "task_id", t.ID, "eval_name", evalName)
	return t, nil
}

// Get returns a task by id.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Result returns the stored result for a completed task.
func (s *TaskService) Result(ctx context.Context, id string) (*task.TaskResult, error) {
	return s.store.GetResult(ctx, id)
}

// Execute claims a PENDING task, runs the engine, and moves the task to
// its terminal state. Cancellation is observed at the next item boundary;
// a cancelled task suppresses sink emission and yields ErrTaskCancelled.
func (s *TaskService) Execute(ctx context.Context, id string) (*task.TaskResult, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	var cfg TaskConfig
	if err := json.Unmarshal(t.Config, &cfg); err != nil {
		return nil, fmt.Errorf("parse task config: %w", err)
	}

	startedAt := time.Now().UTC()
	if err := s.store.Transition(ctx, id, task.StatusPending, task.StatusRunning,
		task.TransitionFields{StartedAt: &startedAt}); err != nil {
		return nil, err
	}
	s.transitionMetric(task.StatusRunning)
	s.logger.Info("task claimed", "task_id", id, "eval_name", t.EvalName)

	req, err := s.buildRunRequest(t.EvalName, cfg)
	if err != nil {
		return nil, s.fail(ctx, id, err)
	}
	req.SinkGate = func() bool { return !s.isCancelled(id) }

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchDone := make(chan struct{})
	go s.watchCancellation(runCtx, id, cancel, watchDone)

	res, runErr := s.engine.Run(runCtx, req)
	cancel()
	<-watchDone

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) && s.isCancelled(id) {
			s.transitionMetric(task.StatusCancelled)
			s.logger.Info("task cancelled mid-run", "task_id", id)
			return nil, fmt.Errorf("task %s: %w", id, ErrTaskCancelled)
		}
		return nil, s.fail(ctx, id, runErr)
	}

	result := &task.TaskResult{
		TaskID:               id,
		Result:               *res,
		ExecutionTimeSeconds: time.Since(startedAt).Seconds(),
	}
	if err := s.store.SaveResult(ctx, result); err != nil {
		return nil, s.fail(ctx, id, fmt.Errorf("persist result: %w", err))
	}

	completedAt := time.Now().UTC()
	err = s.store.Transition(ctx, id, task.StatusRunning, task.StatusCompleted,
		task.TransitionFields{CompletedAt: &completedAt, ResultRef: id})
	if errors.Is(err, task.ErrConflict) && s.isCancelled(id) {
		// Cancel raced the completion; the cancellation wins.
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskCancelled)
	}
	if err != nil {
		return nil, err
	}

	s.transitionMetric(task.StatusCompleted)
	s.logger.Info("task completed",
		"task_id", id,
		"run_id", res.RunID,
		"scores", len(res.Scores),
		"execution_seconds", result.ExecutionTimeSeconds)
	return result, nil
}

// Cancel moves a PENDING or RUNNING task to CANCELLED. A running
// execution observes the cancellation at its next item boundary.
func (s *TaskService) Cancel(ctx context.Context, id string) error {
	now := time.Now().UTC()
	fields := task.TransitionFields{CompletedAt: &now}

	err := s.store.Transition(ctx, id, task.StatusPending, task.StatusCancelled, fields)
	if errors.Is(err, task.ErrConflict) {
		err = s.store.Transition(ctx, id, task.StatusRunning, task.StatusCancelled, fields)
	}
	if err != nil {
		return err
	}

	s.transitionMetric(task.StatusCancelled)
	s.logger.Info("task cancelled", "task_id", id)
	return nil
}

// fail moves a running task to FAILED with the cause and returns the
// original error.
func (s *TaskService) fail(ctx context.Context, id string, cause error) error {
	now := time.Now().UTC()
	if err := s.store.Transition(ctx, id, task.StatusRunning, task.StatusFailed,
		task.TransitionFields{CompletedAt: &now, Error: cause.Error()}); err != nil {
		s.logger.Warn("failure transition rejected", "task_id", id, "error", err)
	} else {
		s.transitionMetric(task.StatusFailed)
	}
	return cause
}

// isCancelled re-reads the task row; a read failure counts as not
// cancelled so a flaky store never suppresses results.
func (s *TaskService) isCancelled(id string) bool {
	t, err := s.store.GetTask(context.Background(), id)
	return err == nil && t.Status == task.StatusCancelled
}

// watchCancellation polls the task row and cancels the run context when
// the task reaches CANCELLED. Returns when the run context ends.
func (s *TaskService) watchCancellation(ctx context.Context, id string, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isCancelled(id) {
				cancel()
				return
			}
		}
	}
}

func (s *TaskService) transitionMetric(status task.Status) {
	if s.metrics != nil {
		s.metrics.TasksTotal.WithLabelValues(string(status)).Inc()
	}
}

// buildRunRequest materialises the dataset and builds every configured
// component through the registries. Scorers are wrapped for enriched
// outputs and failure isolation.
func (s *TaskService) buildRunRequest(name string, cfg TaskConfig) (RunRequest, error) {
	ds, err := loadDataset(cfg.Dataset)
	if err != nil {
		return RunRequest{}, err
	}

	scorers := make([]eval.Scorer, 0, len(cfg.Scorers))
	for _, sc := range cfg.Scorers {
		built, err := registry.Scorers.Build(sc.Type, sc.Config)
		if err != nil {
			return RunRequest{}, fmt.Errorf("build scorer %q: %w", sc.Type, err)
		}
		scorers = append(scorers, scorer.Safe(scorer.Enriched(built)))
	}

	var adapter eval.Adapter
	if cfg.Adapter != nil {
		adapter, err = registry.Adapters.Build(cfg.Adapter.Type, cfg.Adapter.Config)
		if err != nil {
			return RunRequest{}, fmt.Errorf("build adapter %q: %w", cfg.Adapter.Type, err)
		}
	}

	sinks := make([]eval.Sink, 0, len(cfg.Sinks))
	for _, sk := range cfg.Sinks {
		built, err := registry.Sinks.Build(sk.Type, sk.Config)
		if err != nil {
			return RunRequest{}, fmt.Errorf("build sink %q: %w", sk.Type, err)
		}
		sinks = append(sinks, built)
	}

	// Trace-reading adapters bring their backend along: cost data feeds the
	// aggregate metrics, and scores are written back to the traces they
	// grade.
	reader := traceBackend(adapter)
	if writer, ok := reader.(sink.ScoreWriter); ok {
		sinks = append(sinks, sink.NewForwarder(writer))
	}

	return RunRequest{
		Name:             name,
		Dataset:          ds,
		Scorers:          scorers,
		Adapter:          adapter,
		Model:            cfg.Model,
		ConcurrencyLimit: cfg.Concurrency,
		Sinks:            sinks,
		TraceReader:      reader,
	}, nil
}

// traceBackend returns the adapter's trace backend, or nil for adapters
// that generate rather than replay.
func traceBackend(adapter eval.Adapter) eval.TraceReader {
	if src, ok := adapter.(interface{ TraceReader() eval.TraceReader }); ok {
		return src.TraceReader()
	}
	return nil
}

// loadDataset dispatches to the loader named by the config type.
func loadDataset(cfg DatasetConfig) (*eval.Dataset, error) {
	switch cfg.Type {
	case "jsonl":
		return dataset.LoadJSONL(cfg.Path)
	case "indexed_csv":
		return dataset.LoadIndexedCSV(dataset.IndexedCSVConfig{
			Path:          cfg.Path,
			BaseDir:       cfg.BaseDir,
			EntityType:    cfg.EntityType,
			OperationType: cfg.OperationType,
			TestIDs:       cfg.TestIDs,
			ActualSuffix:  cfg.ActualSuffix,
		})
	}
	return nil, fmt.Errorf("unknown dataset type %q", cfg.Type)
}
