package eval

import "context"

// Generation is an adapter's answer for one item.
type Generation struct {
	// Output is the produced output (raw or enriched).
	Output Output
	// TraceID, when set, links the generation to a trace in the tracing
	// backend for later score attachment and cost resolution.
	TraceID string
	// ObservationID narrows the link to a single observation.
	ObservationID string
	// Metadata carries adapter metrics (latency, token counts) that the
	// engine merges into score metadata.
	Metadata map[string]any
}

// Adapter invokes an external AI system to produce an output for an item.
type Adapter interface {
	// Generate produces an output for the given input. The model may be
	// empty, in which case the adapter's configured default applies.
	Generate(ctx context.Context, input map[string]any, model string) (Generation, error)
}

// Scorer grades a generated output against an expected value. Scorers are
// pure: they must not mutate their inputs, and only LLM-judge scorers may
// perform I/O.
type Scorer interface {
	// Name is the stable score name used for aggregation.
	Name() string
	// EvalID is the versioned scorer identifier (e.g. "exact_match.v1").
	EvalID() string
	// Score grades generated against expected. metadata is read-only.
	Score(ctx context.Context, generated Output, expected any, metadata map[string]any) (Score, error)
}

// Sink is an effectful consumer of scores and runs. Sinks own private
// buffers; the engine calls EmitRun exactly once and Flush exactly once per
// run. Errors from one sink never prevent other sinks from flushing.
type Sink interface {
	// Emit accepts a single score for buffering.
	Emit(score Score) error
	// EmitRun accepts a whole run for buffering.
	EmitRun(run *EvalResult) error
	// Flush writes buffered records to the sink's destination.
	Flush() error
}

// Trace is a completed generation trace read from the tracing backend.
type Trace struct {
	// ID is the trace identifier.
	ID string
	// Output is the recorded final output of the traced generation.
	Output string
	// Attributes are the raw trace attributes. Cost and token data is
	// extracted from these (see CostData).
	Attributes map[string]any
}

// CostData is the per-trace cost summary resolved from trace attributes.
type CostData struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
}

// TraceReader is the read-only port to the tracing backend. The engine uses
// it to resolve cost data per trace_id when computing aggregate metrics.
type TraceReader interface {
	// GetTrace returns a trace by id.
	GetTrace(ctx context.Context, id string) (*Trace, error)
	// GetCostData returns the cost summary for a trace.
	GetCostData(ctx context.Context, id string) (CostData, error)
	// ListTraces returns up to limit traces matching the attribute filters.
	ListTraces(ctx context.Context, filters map[string]any, limit int) ([]Trace, error)
}
