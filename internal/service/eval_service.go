package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// DefaultConcurrency is the semaphore capacity when the request does not
// set one.
const DefaultConcurrency = 5

// RunRequest parameterises one engine execution.
type RunRequest struct {
	// Name is the evaluation name; it feeds the eval_id derivation.
	Name string
	// Dataset is the materialised dataset to iterate.
	Dataset *eval.Dataset
	// Scorers grade each item. At least one is required.
	Scorers []eval.Scorer
	// Adapter produces outputs for items without a pre-computed one. May
	// be nil for fully offline datasets.
	Adapter eval.Adapter
	// Model is passed to the adapter and recorded in score metadata.
	Model string
	// ConcurrencyLimit bounds in-flight items (default 5, lower bound 1).
	ConcurrencyLimit int
	// Sinks receive every score, then one EmitRun and one Flush each.
	Sinks []eval.Sink
	// TraceReader, when set, resolves per-trace cost data for run-level
	// aggregate metrics.
	TraceReader eval.TraceReader
	// SinkGate, when set, is consulted before sink fan-out; returning
	// false suppresses emission (used for cancelled tasks).
	SinkGate func() bool
	// RunID overrides the generated run id (the workflow runtime passes a
	// journaled one). Empty means a fresh uuid.
	RunID string
	// StartedAt overrides the run start time. Zero means now.
	StartedAt time.Time
}

// EvalService is the evaluation engine.
type EvalService struct {
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewEvalService creates the engine. logger may be nil (slog.Default);
// metrics may be nil to disable instrumentation.
func NewEvalService(logger *slog.Logger, metrics *Metrics) *EvalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvalService{
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("evalgate/engine"),
	}
}

// Run executes the engine: per-item generation and scoring under a
// counting semaphore, then aggregate metrics and sink fan-out. Context
// cancellation stops scheduling at item boundaries; in-flight items
// finish and sinks still flush (unless the SinkGate suppresses them).
// Per-item failures never abort the run.
func (s *EvalService) Run(ctx context.Context, req RunRequest) (*eval.EvalResult, error) {
	if req.Dataset == nil {
		return nil, fmt.Errorf("run request has no dataset")
	}
	if len(req.Scorers) == 0 {
		return nil, fmt.Errorf("run request has no scorers")
	}

	evalIDs := make([]string, len(req.Scorers))
	for i, sc := range req.Scorers {
		evalIDs[i] = sc.EvalID()
	}
	evalID := eval.DeriveEvalID(req.Name, evalIDs, req.Dataset.ID)

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	startedAt := req.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	limit := req.ConcurrencyLimit
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	ctx, span := s.tracer.Start(ctx, "eval.run", trace.WithAttributes(
		attribute.String("eval.id", evalID),
		attribute.String("eval.run_id", runID),
		attribute.String("eval.dataset_id", req.Dataset.ID),
		attribute.Int("eval.items", len(req.Dataset.Items)),
		attribute.Int("eval.concurrency", limit),
	))
	defer span.End()

	s.logger.Info("starting run",
		"eval_id", evalID,
		"run_id", runID,
		"dataset_id", req.Dataset.ID,
		"items", len(req.Dataset.Items),
		"concurrency", limit)

	run := &eval.EvalResult{
		EvalID:    evalID,
		RunID:     runID,
		DatasetID: req.Dataset.ID,
		Scores:    make([]eval.Score, 0, len(req.Dataset.Items)),
		CreatedAt: startedAt,
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, limit)
	)
	appendScores := func(scores ...eval.Score) {
		mu.Lock()
		run.Scores = append(run.Scores, scores...)
		mu.Unlock()
	}

	cancelled := false
	for _, item := range req.Dataset.Items {
		// Cancellation is honoured at item boundaries only: in-flight
		// items run to completion.
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(item eval.DatasetItem) {
			defer wg.Done()
			defer func() { <-sem }()

			if s.metrics != nil {
				s.metrics.ActiveItems.Inc()
				defer s.metrics.ActiveItems.Dec()
			}
			appendScores(s.runItem(ctx, req, item)...)
		}(item)
	}
	wg.Wait()

	if req.TraceReader != nil {
		s.attachAggregateMetrics(ctx, run, req.TraceReader)
	}

	if req.SinkGate == nil || req.SinkGate() {
		s.emitToSinks(run, req.Sinks)
	} else {
		s.logger.Info("sink emission suppressed", "run_id", runID)
	}

	if s.metrics != nil {
		status := "ok"
		if cancelled {
			status = "cancelled"
		}
		s.metrics.RunsTotal.WithLabelValues(status).Inc()
		s.metrics.RunDuration.WithLabelValues(req.Name).Observe(time.Since(startedAt).Seconds())
	}
	s.logger.Info("run complete",
		"run_id", runID,
		"scores", len(run.Scores),
		"cancelled", cancelled)

	if cancelled {
		return run, ctx.Err()
	}
	return run, nil
}

// runItem is one unit of work: generate (unless offline), score, and
// return the item's scores.
func (s *EvalService) runItem(ctx context.Context, req RunRequest, item eval.DatasetItem) []eval.Score {
	ctx, span := s.tracer.Start(ctx, "eval.item", trace.WithAttributes(
		attribute.String("eval.item_id", item.ID),
	))
	defer span.End()

	baseMeta := func() map[string]any {
		meta := make(map[string]any, len(item.Metadata)+3)
		for k, v := range item.Metadata {
			meta[k] = v
		}
		meta[eval.MetaDatasetItemID] = item.ID
		meta[eval.MetaTestID] = item.ID
		if req.Model != "" {
			meta[eval.MetaModel] = req.Model
		}
		return meta
	}

	var (
		output  eval.Output
		gen     eval.Generation
		offline = item.Output != nil
	)
	if offline {
		output = *item.Output
		if s.metrics != nil {
			s.metrics.ItemsTotal.WithLabelValues("skipped").Inc()
		}
	} else {
		if req.Adapter == nil {
			return []eval.Score{s.generationError(item, baseMeta(), fmt.Errorf("no adapter configured"))}
		}
		var err error
		gen, err = req.Adapter.Generate(ctx, item.Input, req.Model)
		if err != nil {
			s.logger.Warn("generation failed", "item_id", item.ID, "error", err)
			if s.metrics != nil {
				s.metrics.ItemsTotal.WithLabelValues("generation_error").Inc()
				s.metrics.GenerationErrors.Inc()
			}
			return []eval.Score{s.generationError(item, baseMeta(), err)}
		}
		output = gen.Output
	}

	scores := make([]eval.Score, 0, len(req.Scorers))
	for _, scorer := range req.Scorers {
		meta := baseMeta()
		for k, v := range gen.Metadata {
			meta[k] = v
		}

		score, err := scorer.Score(ctx, output, item.Expected, meta)
		if err != nil {
			// A failing scorer yields a zero score, never a run abort.
			score = eval.Score{
				Name:    scorer.Name(),
				Value:   eval.Number(0),
				EvalID:  scorer.EvalID(),
				Comment: err.Error(),
			}
		}
		if score.Metadata == nil {
			score.Metadata = meta
		}
		if score.TraceID == "" {
			score.TraceID = gen.TraceID
		}
		if score.ObservationID == "" {
			score.ObservationID = gen.ObservationID
		}
		scores = append(scores, score)
	}

	if s.metrics != nil {
		if !offline {
			s.metrics.ItemsTotal.WithLabelValues("scored").Inc()
		}
		s.metrics.ScoresTotal.Add(float64(len(scores)))
	}
	return scores
}

// generationError builds the distinguished adapter-failure score.
func (s *EvalService) generationError(item eval.DatasetItem, meta map[string]any, cause error) eval.Score {
	return eval.Score{
		Name:     eval.GenerationErrorScoreName,
		Value:    eval.Boolean(false),
		Comment:  cause.Error(),
		Metadata: meta,
	}
}

// attachAggregateMetrics resolves cost data per distinct trace id and
// attaches run-level aggregates. Non-finite score values are excluded
// from the mean and counted as failed.
func (s *EvalService) attachAggregateMetrics(ctx context.Context, run *eval.EvalResult, reader eval.TraceReader) {
	var agg eval.AggregateMetrics

	var sum float64
	var counted int
	for _, score := range run.Scores {
		if !score.Value.Finite() {
			agg.Failed++
			continue
		}
		sum += score.Value.Float()
		counted++
	}
	if counted > 0 {
		agg.Accuracy = sum / float64(counted)
	}

	seen := make(map[string]struct{})
	for _, score := range run.Scores {
		if score.TraceID == "" {
			continue
		}
		if _, dup := seen[score.TraceID]; dup {
			continue
		}
		seen[score.TraceID] = struct{}{}

		cost, err := reader.GetCostData(ctx, score.TraceID)
		if err != nil {
			s.logger.Warn("cost resolution failed", "trace_id", score.TraceID, "error", err)
			continue
		}
		agg.Cost += cost.Cost
		agg.InputTokens += cost.InputTokens
		agg.OutputTokens += cost.OutputTokens
	}

	if run.Metadata == nil {
		run.Metadata = make(map[string]any)
	}
	run.Metadata[eval.MetaAggregateMetrics] = agg
}

// emitToSinks fans the run out: every score, then one EmitRun and one
// Flush per sink. A failing sink is logged and never prevents the others
// from flushing.
func (s *EvalService) emitToSinks(run *eval.EvalResult, sinks []eval.Sink) {
	for _, sink := range sinks {
		for _, score := range run.Scores {
			if err := sink.Emit(score); err != nil {
				s.logger.Warn("sink emit failed", "error", err)
				if s.metrics != nil {
					s.metrics.SinkErrorsTotal.WithLabelValues("emit").Inc()
				}
			}
		}
		if err := sink.EmitRun(run); err != nil {
			s.logger.Warn("sink emit_run failed", "error", err)
			if s.metrics != nil {
				s.metrics.SinkErrorsTotal.WithLabelValues("emit_run").Inc()
			}
		}
		if err := sink.Flush(); err != nil {
			s.logger.Warn("sink flush failed", "error", err)
			if s.metrics != nil {
				s.metrics.SinkErrorsTotal.WithLabelValues("flush").Inc()
			}
		}
	}
}
