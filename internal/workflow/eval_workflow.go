package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Activity names used in journal histories.
const (
	ActivityLoadDataset = "load_dataset"
	ActivityRunEval     = "run_eval"
	ActivityEmitResults = "emit_results"
)

// RunSpec is what the run_eval activity receives: everything the engine
// needs that is serialisable. The runtime supplies RunID and StartedAt
// from the journal so retries and replays keep the same identity.
type RunSpec struct {
	Name      string        `json:"name"`
	Dataset   *eval.Dataset `json:"dataset"`
	Model     string        `json:"model,omitempty"`
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
}

// Activities are the side-effecting operations the eval workflow
// orchestrates. Implementations live in the service layer.
type Activities interface {
	// LoadDataset materialises the dataset named by source.
	LoadDataset(ctx context.Context, source string) (*eval.Dataset, error)
	// RunEval executes the engine for the run spec.
	RunEval(ctx context.Context, spec RunSpec) (*eval.EvalResult, error)
	// EmitResults fans the run out to the configured sinks.
	EmitResults(ctx context.Context, run *eval.EvalResult) error
}

// EvalInput parameterises one eval workflow execution.
type EvalInput struct {
	// Name is the evaluation name.
	Name string
	// Source names the dataset to load.
	Source string
	// Model selects the adapter model. Empty uses the adapter default.
	Model string
}

// Runner executes workflows against a journal.
type Runner struct {
	journal Journal
	logger  *slog.Logger
}

// NewRunner creates a workflow runner. A nil logger defaults to
// slog.Default.
func NewRunner(journal Journal, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{journal: journal, logger: logger}
}

// RunEval executes the load→run→emit workflow under the given workflow id.
// Re-running with the same id replays journaled steps instead of repeating
// their side effects. An emit_results failure is advisory: the run result
// is still returned.
func (r *Runner) RunEval(ctx context.Context, workflowID string, in EvalInput, acts Activities) (*eval.EvalResult, error) {
	wc := newContext(ctx, r.journal, workflowID)

	startedAt, err := wc.Now()
	if err != nil {
		return nil, err
	}
	runID, err := wc.NewID()
	if err != nil {
		return nil, err
	}

	ds, err := ExecuteActivity(wc, ActivityLoadDataset, LoadDatasetPolicy,
		func(ctx context.Context) (*eval.Dataset, error) {
			return acts.LoadDataset(ctx, in.Source)
		})
	if err != nil {
		return nil, err
	}

	run, err := ExecuteActivity(wc, ActivityRunEval, RunEvalPolicy,
		func(ctx context.Context) (*eval.EvalResult, error) {
			return acts.RunEval(ctx, RunSpec{
				Name:      in.Name,
				Dataset:   ds,
				Model:     in.Model,
				RunID:     runID,
				StartedAt: startedAt,
			})
		})
	if err != nil {
		return nil, err
	}

	if _, err := ExecuteActivity(wc, ActivityEmitResults, EmitResultsPolicy,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, acts.EmitResults(ctx, run)
		}); err != nil {
		r.logger.Warn("emit_results failed, run result preserved",
			"workflow_id", workflowID,
			"run_id", run.RunID,
			"error", err)
	}

	return run, nil
}

// RunMultiModel spawns one child eval workflow per model with the
// deterministic id `<name>-<model>` (`default` when the model is empty)
// and returns the child results in model order. Cancellation propagates to
// the children; the first child failure aborts the remainder.
func (r *Runner) RunMultiModel(ctx context.Context, name, source string, models []string, acts Activities) ([]*eval.EvalResult, error) {
	if len(models) == 0 {
		models = []string{""}
	}

	results := make([]*eval.EvalResult, 0, len(models))
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		childID := ChildWorkflowID(name, model)
		r.logger.Info("starting child workflow", "workflow_id", childID, "model", model)

		run, err := r.RunEval(ctx, childID, EvalInput{Name: name, Source: source, Model: model}, acts)
		if err != nil {
			return results, fmt.Errorf("child workflow %s: %w", childID, err)
		}
		results = append(results, run)
	}
	return results, nil
}

// ChildWorkflowID derives the deterministic child id for a model.
func ChildWorkflowID(name, model string) string {
	if model == "" {
		model = "default"
	}
	return name + "-" + model
}
