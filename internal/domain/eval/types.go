// Package eval contains the core domain types for evaluation runs:
// dataset items, outputs, scores, results, and the ports (Adapter, Scorer,
// Sink, TraceReader) that concrete implementations plug into.
package eval

import "time"

// Well-known metadata keys carried on scores.
const (
	// MetaDatasetItemID links a score back to the dataset item it graded.
	MetaDatasetItemID = "dataset_item_id"
	// MetaTestID mirrors the dataset item id for test-report sinks.
	MetaTestID = "test_id"
	// MetaModel records the model the adapter was invoked with.
	MetaModel = "model"
)

// GenerationErrorScoreName is the distinguished score name emitted when an
// adapter fails for an item. The run continues; the failure is recorded as
// a false-valued score instead of aborting.
const GenerationErrorScoreName = "generation_error"

// DatasetItem is a single test case. Immutable after load.
type DatasetItem struct {
	// ID uniquely identifies the item within its dataset.
	ID string `json:"id"`
	// Input is the arbitrary key/value input handed to the adapter.
	Input map[string]any `json:"input"`
	// Output, when non-nil, is a pre-computed output. The engine skips the
	// adapter for such items (offline scoring).
	Output *Output `json:"output,omitempty"`
	// Expected is the optional ground truth handed to scorers.
	Expected any `json:"expected,omitempty"`
	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`
	// Metadata is arbitrary item metadata, merged into score metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Dataset is a finite, ordered collection of items.
type Dataset struct {
	// ID identifies the dataset; it feeds into the eval_id derivation.
	ID string `json:"id"`
	// Items are the test cases in load order.
	Items []DatasetItem `json:"items"`
}

// EvalResult is the full record of one execution. Append-only once the
// engine returns it; sinks must not observe it before the run completes.
type EvalResult struct {
	// EvalID identifies the evaluation configuration (deterministic, see
	// DeriveEvalID). Distinct runs of the same configuration share it.
	EvalID string `json:"eval_id"`
	// RunID uniquely identifies this execution.
	RunID string `json:"run_id"`
	// DatasetID names the dataset the run iterated.
	DatasetID string `json:"dataset_id"`
	// Scores are the produced scores. Order is unspecified; consumers that
	// need dataset order must sort by metadata dataset_item_id.
	Scores []Score `json:"scores"`
	// Metadata carries run-level metadata, including aggregate_metrics when
	// a trace reader was configured.
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the run started (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// MetaAggregateMetrics is the run metadata key under which aggregate
// metrics are attached.
const MetaAggregateMetrics = "aggregate_metrics"

// AggregateMetrics summarises a run when trace cost data is available.
type AggregateMetrics struct {
	// Accuracy is the mean of all finite numeric score values.
	Accuracy float64 `json:"accuracy"`
	// Cost is the summed cost across resolved traces.
	Cost float64 `json:"cost"`
	// InputTokens is the summed input token count.
	InputTokens int `json:"input_tokens"`
	// OutputTokens is the summed output token count.
	OutputTokens int `json:"output_tokens"`
	// Failed counts score values excluded from the mean (NaN, ±Inf).
	Failed int `json:"failed"`
}
