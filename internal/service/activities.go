package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evalgate/evalgate/internal/adapter/outbound/dataset"
	"github.com/evalgate/evalgate/internal/adapter/outbound/sink"
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/workflow"
)

// RunSaver persists finished runs. *sqlite.Store satisfies it.
type RunSaver interface {
	SaveRun(ctx context.Context, run *eval.EvalResult, model string) error
}

// EvalActivities implements workflow.Activities on top of the engine:
// load_dataset resolves a dataset source, run_eval executes the engine
// without sinks (so retries never double-emit), and emit_results fans the
// finished run out.
type EvalActivities struct {
	engine  *EvalService
	scorers []eval.Scorer
	adapter eval.Adapter
	sinks   []eval.Sink
	traces  eval.TraceReader
	saver   RunSaver
	logger  *slog.Logger
}

// NewEvalActivities wires the workflow activities. adapter and saver may
// be nil; logger may be nil. A trace-reading adapter contributes its
// backend for aggregate cost metrics and score write-back.
func NewEvalActivities(engine *EvalService, scorers []eval.Scorer, adapter eval.Adapter, sinks []eval.Sink, saver RunSaver, logger *slog.Logger) *EvalActivities {
	if logger == nil {
		logger = slog.Default()
	}

	reader := traceBackend(adapter)
	if writer, ok := reader.(sink.ScoreWriter); ok {
		sinks = append(sinks, sink.NewForwarder(writer))
	}

	return &EvalActivities{
		engine:  engine,
		scorers: scorers,
		adapter: adapter,
		sinks:   sinks,
		traces:  reader,
		saver:   saver,
		logger:  logger,
	}
}

// LoadDataset materialises a dataset source: a .jsonl path, a .csv index
// path, or a JSON-encoded dataset config.
func (a *EvalActivities) LoadDataset(_ context.Context, source string) (*eval.Dataset, error) {
	switch {
	case strings.HasSuffix(source, ".jsonl"):
		return dataset.LoadJSONL(source)
	case strings.HasSuffix(source, ".csv"):
		return dataset.LoadIndexedCSV(dataset.IndexedCSVConfig{Path: source})
	case strings.HasPrefix(strings.TrimSpace(source), "{"):
		var cfg DatasetConfig
		if err := json.Unmarshal([]byte(source), &cfg); err != nil {
			return nil, fmt.Errorf("parse dataset source: %w", err)
		}
		return loadDataset(cfg)
	}
	return nil, fmt.Errorf("unrecognised dataset source %q", source)
}

// RunEval executes the engine for the run spec. The journaled RunID and
// StartedAt keep the run identity stable across retries and replays. The
// run is persisted when a saver is configured; sinks are deferred to
// emit_results.
func (a *EvalActivities) RunEval(ctx context.Context, spec workflow.RunSpec) (*eval.EvalResult, error) {
	run, err := a.engine.Run(ctx, RunRequest{
		Name:        spec.Name,
		Dataset:     spec.Dataset,
		Scorers:     a.scorers,
		Adapter:     a.adapter,
		Model:       spec.Model,
		RunID:       spec.RunID,
		StartedAt:   spec.StartedAt,
		TraceReader: a.traces,
	})
	if err != nil {
		return nil, err
	}

	if a.saver != nil {
		if err := a.saver.SaveRun(ctx, run, spec.Model); err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
	}
	return run, nil
}

// EmitResults fans the run out to the configured sinks: every score, then
// one EmitRun and one Flush per sink. All sink errors are reported
// together.
func (a *EvalActivities) EmitResults(_ context.Context, run *eval.EvalResult) error {
	var errs []error
	for _, out := range a.sinks {
		for _, score := range run.Scores {
			if err := out.Emit(score); err != nil {
				errs = append(errs, err)
			}
		}
		if err := out.EmitRun(run); err != nil {
			errs = append(errs, err)
		}
		if err := out.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
