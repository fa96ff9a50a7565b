package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/task"
	"github.com/evalgate/evalgate/internal/workflow"
)

func TestTaskStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()

	created := &task.Task{
		ID:        "task-1",
		EvalName:  "qa",
		Status:    task.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateTask(ctx, created); err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if err := s.CreateTask(ctx, created); err == nil {
		t.Error("duplicate CreateTask() should fail")
	}

	got, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if got.EvalName != "qa" || got.Status != task.StatusPending {
		t.Errorf("task = %+v", got)
	}

	if _, err := s.GetTask(ctx, "missing"); !errors.Is(err, task.ErrTaskNotFound) {
		t.Errorf("GetTask(missing) = %v, want ErrTaskNotFound", err)
	}
}

func TestTaskStore_TransitionCAS(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.CreateTask(ctx, &task.Task{ID: "task-1", Status: task.StatusPending, CreatedAt: now})

	started := now.Add(time.Second)
	if err := s.Transition(ctx, "task-1", task.StatusPending, task.StatusRunning,
		task.TransitionFields{StartedAt: &started}); err != nil {
		t.Fatalf("Transition() error: %v", err)
	}

	// Stale CAS: task is RUNNING, expecting PENDING must conflict.
	err := s.Transition(ctx, "task-1", task.StatusPending, task.StatusCancelled, task.TransitionFields{})
	if !errors.Is(err, task.ErrConflict) {
		t.Errorf("stale Transition() = %v, want ErrConflict", err)
	}

	got, _ := s.GetTask(ctx, "task-1")
	if got.Status != task.StatusRunning || got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("task after transition = %+v", got)
	}
}

func TestTaskStore_ListByStatus(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	base := time.Now().UTC()

	_ = s.CreateTask(ctx, &task.Task{ID: "b", Status: task.StatusPending, CreatedAt: base.Add(2 * time.Second)})
	_ = s.CreateTask(ctx, &task.Task{ID: "a", Status: task.StatusPending, CreatedAt: base})
	_ = s.CreateTask(ctx, &task.Task{ID: "c", Status: task.StatusRunning, CreatedAt: base.Add(time.Second)})

	pending, err := s.ListByStatus(ctx, task.StatusPending, 0)
	if err != nil {
		t.Fatalf("ListByStatus() error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "a" || pending[1].ID != "b" {
		t.Errorf("pending = %+v", pending)
	}

	limited, _ := s.ListByStatus(ctx, task.StatusPending, 1)
	if len(limited) != 1 || limited[0].ID != "a" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestTaskStore_Results(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()

	if _, err := s.GetResult(ctx, "task-1"); !errors.Is(err, task.ErrResultNotFound) {
		t.Errorf("GetResult() = %v, want ErrResultNotFound", err)
	}

	if err := s.SaveResult(ctx, &task.TaskResult{
		TaskID:               "task-1",
		Result:               eval.EvalResult{RunID: "run-1"},
		ExecutionTimeSeconds: 1.5,
	}); err != nil {
		t.Fatalf("SaveResult() error: %v", err)
	}

	got, err := s.GetResult(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetResult() error: %v", err)
	}
	if got.Result.RunID != "run-1" || got.ExecutionTimeSeconds != 1.5 {
		t.Errorf("result = %+v", got)
	}
}

func TestJournal_AppendGetLen(t *testing.T) {
	t.Parallel()

	j := NewJournal()
	ctx := context.Background()

	if _, err := j.Get(ctx, "wf-1", 0); !errors.Is(err, workflow.ErrEntryNotFound) {
		t.Errorf("Get() = %v, want ErrEntryNotFound", err)
	}

	e := workflow.Entry{WorkflowID: "wf-1", Seq: 0, Kind: workflow.KindNow, Result: []byte(`"t"`)}
	if err := j.Append(ctx, e); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	// Out-of-order append is a programming error in the runtime.
	if err := j.Append(ctx, workflow.Entry{WorkflowID: "wf-1", Seq: 5}); err == nil {
		t.Error("out-of-order Append() should fail")
	}

	got, err := j.Get(ctx, "wf-1", 0)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Kind != workflow.KindNow {
		t.Errorf("entry = %+v", got)
	}

	n, _ := j.Len(ctx, "wf-1")
	if n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}
