package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evalgate/evalgate/internal/adapter/outbound/memory"
	_ "github.com/evalgate/evalgate/internal/adapter/outbound/tracing"
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/task"
	"github.com/evalgate/evalgate/internal/service"
)

// writeOfflineDataset writes a JSONL dataset whose items carry pre-computed
// outputs, so no adapter is needed.
func writeOfflineDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qa.jsonl")
	lines := `{"id":"t1","input":{"prompt":"q1"},"output":"42","expected":"42"}
{"id":"t2","input":{"prompt":"q2"},"output":"41","expected":"42"}
`
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func offlineConfig(t *testing.T, path string) json.RawMessage {
	t.Helper()
	cfg, err := json.Marshal(service.TaskConfig{
		Dataset: service.DatasetConfig{Type: "jsonl", Path: path},
		Scorers: []service.ComponentConfig{{Type: "exact"}},
	})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return cfg
}

func newTaskService(t *testing.T) (*service.TaskService, *memory.TaskStore) {
	t.Helper()
	store := memory.NewTaskStore()
	engine := service.NewEvalService(nil, nil)
	return service.NewTaskService(store, engine, nil, nil), store
}

func TestTaskService_Lifecycle(t *testing.T) {
	t.Parallel()

	svc, store := newTaskService(t)
	ctx := context.Background()
	cfg := offlineConfig(t, writeOfflineDataset(t))

	created, err := svc.Create(ctx, "qa", cfg, map[string]any{"origin": "test"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.Status != task.StatusPending || created.ID == "" {
		t.Errorf("created task = %+v", created)
	}

	result, err := svc.Execute(ctx, created.ID)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Result.Scores) != 2 {
		t.Errorf("scores = %d, want 2", len(result.Result.Scores))
	}
	if result.ExecutionTimeSeconds < 0 {
		t.Errorf("execution time = %g", result.ExecutionTimeSeconds)
	}

	final, err := store.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if final.Status != task.StatusCompleted || final.ResultRef != created.ID {
		t.Errorf("final task = %+v", final)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Errorf("timestamps missing: %+v", final)
	}

	stored, err := svc.Result(ctx, created.ID)
	if err != nil {
		t.Fatalf("Result() error: %v", err)
	}
	if stored.Result.RunID != result.Result.RunID {
		t.Errorf("stored run id = %q, want %q", stored.Result.RunID, result.Result.RunID)
	}

	// The task is no longer PENDING, so a second claim must conflict.
	if _, err := svc.Execute(ctx, created.ID); !errors.Is(err, task.ErrConflict) {
		t.Errorf("second Execute() = %v, want ErrConflict", err)
	}
}

func TestTaskService_CancelPending(t *testing.T) {
	t.Parallel()

	svc, store := newTaskService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "qa", offlineConfig(t, writeOfflineDataset(t)), nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := svc.Cancel(ctx, created.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	got, _ := store.GetTask(ctx, created.ID)
	if got.Status != task.StatusCancelled || got.CompletedAt == nil {
		t.Errorf("cancelled task = %+v", got)
	}

	if _, err := svc.Execute(ctx, created.ID); !errors.Is(err, task.ErrConflict) {
		t.Errorf("Execute() after cancel = %v, want ErrConflict", err)
	}

	// A terminal task cannot be cancelled again.
	if err := svc.Cancel(ctx, created.ID); !errors.Is(err, task.ErrConflict) {
		t.Errorf("second Cancel() = %v, want ErrConflict", err)
	}
}

func TestTaskService_ExecuteFailureMarksFailed(t *testing.T) {
	t.Parallel()

	svc, store := newTaskService(t)
	ctx := context.Background()

	cfg := offlineConfig(t, filepath.Join(t.TempDir(), "missing.jsonl"))
	created, err := svc.Create(ctx, "qa", cfg, nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := svc.Execute(ctx, created.ID); err == nil {
		t.Fatal("Execute() with missing dataset should fail")
	}

	got, _ := store.GetTask(ctx, created.ID)
	if got.Status != task.StatusFailed || got.Error == "" {
		t.Errorf("failed task = %+v", got)
	}
}

func TestTaskService_CreateRejectsBadConfig(t *testing.T) {
	t.Parallel()

	svc, _ := newTaskService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "qa", json.RawMessage(`{not json`), nil); err == nil {
		t.Error("Create() with malformed config should fail")
	}
	if _, err := svc.Create(ctx, "qa", json.RawMessage(`{"dataset":{"type":"jsonl","path":"x"}}`), nil); err == nil {
		t.Error("Create() without scorers should fail")
	}
}

func TestTaskService_TraceReplayAttachesAggregates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	traces := filepath.Join(dir, "traces.jsonl")
	traceLines := `{"id":"tr-1","output":"42","attributes":{"input_tokens":20,"output_tokens":5,"total_cost":0.02}}
{"id":"tr-2","output":"40","attributes":{"input_tokens":10,"output_tokens":5,"total_cost":0.01}}
`
	if err := os.WriteFile(traces, []byte(traceLines), 0o600); err != nil {
		t.Fatal(err)
	}

	ds := filepath.Join(dir, "replay.jsonl")
	dsLines := `{"id":"t1","input":{"trace_id":"tr-1"},"expected":"42"}
{"id":"t2","input":{"trace_id":"tr-2"},"expected":"42"}
`
	if err := os.WriteFile(ds, []byte(dsLines), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := json.Marshal(service.TaskConfig{
		Dataset: service.DatasetConfig{Type: "jsonl", Path: ds},
		Adapter: &service.ComponentConfig{Type: "trace_replay", Config: map[string]any{"path": traces}},
		Scorers: []service.ComponentConfig{{Type: "exact"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	svc, _ := newTaskService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "replay", cfg, nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	result, err := svc.Execute(ctx, created.ID)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	run := result.Result
	if len(run.Scores) != 2 {
		t.Fatalf("scores = %d, want 2", len(run.Scores))
	}
	for _, score := range run.Scores {
		if score.TraceID == "" {
			t.Errorf("score %s has no trace id", score.Name)
		}
	}

	agg, ok := run.Metadata[eval.MetaAggregateMetrics].(eval.AggregateMetrics)
	if !ok {
		t.Fatalf("run metadata missing aggregates: %v", run.Metadata)
	}
	if agg.InputTokens != 30 || agg.OutputTokens != 10 {
		t.Errorf("tokens = %d/%d, want 30/10", agg.InputTokens, agg.OutputTokens)
	}
	if agg.Cost != 0.03 {
		t.Errorf("cost = %g, want 0.03", agg.Cost)
	}
	if agg.Accuracy != 0.5 {
		t.Errorf("accuracy = %g, want 0.5", agg.Accuracy)
	}
}

func TestWorker_ExecutesPendingTasks(t *testing.T) {
	t.Parallel()

	svc, store := newTaskService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := writeOfflineDataset(t)
	var ids []string
	for i := 0; i < 3; i++ {
		created, err := svc.Create(ctx, fmt.Sprintf("qa-%d", i), offlineConfig(t, path), nil)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		ids = append(ids, created.ID)
	}

	worker := service.NewWorker(svc, store, service.WorkerConfig{
		MaxConcurrent: 2,
		PollInterval:  10 * time.Millisecond,
	}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for remaining := len(ids); remaining > 0; {
		select {
		case <-deadline:
			t.Fatalf("%d tasks still incomplete", remaining)
		case <-time.After(20 * time.Millisecond):
		}
		remaining = 0
		for _, id := range ids {
			got, err := store.GetTask(ctx, id)
			if err != nil {
				t.Fatalf("GetTask() error: %v", err)
			}
			if got.Status != task.StatusCompleted {
				remaining++
			}
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
