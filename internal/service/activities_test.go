package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evalgate/evalgate/internal/adapter/outbound/memory"
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/scorer"
	"github.com/evalgate/evalgate/internal/service"
	"github.com/evalgate/evalgate/internal/workflow"
)

func TestActivities_LoadDatasetDispatch(t *testing.T) {
	t.Parallel()

	acts := service.NewEvalActivities(service.NewEvalService(nil, nil),
		[]eval.Scorer{scorer.ExactMatch{}}, nil, nil, nil, nil)

	path := writeOfflineDataset(t)
	ds, err := acts.LoadDataset(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadDataset() error: %v", err)
	}
	if ds.ID != "qa" || len(ds.Items) != 2 {
		t.Errorf("dataset = %+v", ds)
	}

	if _, err := acts.LoadDataset(context.Background(), "mystery.parquet"); err == nil {
		t.Error("LoadDataset() with unknown source should fail")
	}
}

func TestActivities_RunEvalKeepsJournaledIdentity(t *testing.T) {
	t.Parallel()

	acts := service.NewEvalActivities(service.NewEvalService(nil, nil),
		[]eval.Scorer{scorer.ExactMatch{}}, nil, nil, nil, nil)

	out := eval.RawOutput("42")
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run, err := acts.RunEval(context.Background(), workflow.RunSpec{
		Name: "qa",
		Dataset: &eval.Dataset{ID: "ds", Items: []eval.DatasetItem{
			{ID: "t1", Output: &out, Expected: "42"},
		}},
		RunID:     "run-fixed",
		StartedAt: startedAt,
	})
	if err != nil {
		t.Fatalf("RunEval() error: %v", err)
	}
	if run.RunID != "run-fixed" || !run.CreatedAt.Equal(startedAt) {
		t.Errorf("run identity = %q / %v, want the journaled values", run.RunID, run.CreatedAt)
	}
}

func TestActivities_EmitResultsJoinsSinkErrors(t *testing.T) {
	t.Parallel()

	bad := &captureSink{emitErr: errors.New("disk full")}
	good := &captureSink{}
	acts := service.NewEvalActivities(service.NewEvalService(nil, nil),
		[]eval.Scorer{scorer.ExactMatch{}}, nil, []eval.Sink{bad, good}, nil, nil)

	run := &eval.EvalResult{RunID: "run-1", Scores: []eval.Score{{Name: "exact", Value: eval.Boolean(true)}}}
	err := acts.EmitResults(context.Background(), run)
	if err == nil {
		t.Fatal("EmitResults() should surface the failing sink")
	}
	if len(good.scores) != 1 || good.flushes != 1 {
		t.Errorf("healthy sink got %d scores, %d flushes", len(good.scores), good.flushes)
	}
}

func TestActivities_WorkflowEndToEnd(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	acts := service.NewEvalActivities(service.NewEvalService(nil, nil),
		[]eval.Scorer{scorer.ExactMatch{}}, nil, []eval.Sink{sink}, nil, nil)

	journal := memory.NewJournal()
	runner := workflow.NewRunner(journal, nil)

	path := writeOfflineDataset(t)
	run, err := runner.RunEval(context.Background(), "wf-1",
		workflow.EvalInput{Name: "qa", Source: path}, acts)
	if err != nil {
		t.Fatalf("RunEval() error: %v", err)
	}
	if len(run.Scores) != 2 {
		t.Errorf("scores = %d, want 2", len(run.Scores))
	}
	if len(sink.runs) != 1 || sink.flushes != 1 {
		t.Errorf("sink got %d runs, %d flushes", len(sink.runs), sink.flushes)
	}

	// Replaying the same workflow id reuses the journal: the sink is not
	// fed a second time.
	replay, err := runner.RunEval(context.Background(), "wf-1",
		workflow.EvalInput{Name: "qa", Source: path}, acts)
	if err != nil {
		t.Fatalf("replay RunEval() error: %v", err)
	}
	if replay.RunID != run.RunID {
		t.Errorf("replay run id = %q, want %q", replay.RunID, run.RunID)
	}
	if len(sink.runs) != 1 {
		t.Errorf("replay re-emitted: sink has %d runs", len(sink.runs))
	}
}
