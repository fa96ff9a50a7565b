package tracing

import (
	"context"
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Adapter replays recorded trace outputs instead of generating anew. The
// item input must carry the trace id under "trace_id".
type Adapter struct {
	reader eval.TraceReader
}

// NewAdapter creates a trace-reading adapter over any trace backend.
func NewAdapter(reader eval.TraceReader) *Adapter {
	return &Adapter{reader: reader}
}

// TraceReader exposes the adapter's backend so callers can resolve cost
// data and write scores back against the same traces.
func (a *Adapter) TraceReader() eval.TraceReader {
	return a.reader
}

// Generate looks up the trace named by input["trace_id"] and returns its
// recorded output. No new generation happens; the model is ignored.
func (a *Adapter) Generate(ctx context.Context, input map[string]any, _ string) (eval.Generation, error) {
	traceID, _ := input["trace_id"].(string)
	if traceID == "" {
		return eval.Generation{}, fmt.Errorf("item input missing %q", "trace_id")
	}

	trace, err := a.reader.GetTrace(ctx, traceID)
	if err != nil {
		return eval.Generation{}, fmt.Errorf("read trace: %w", err)
	}

	cost := ExtractCostData(trace.Attributes)
	return eval.Generation{
		Output:  eval.RawOutput(trace.Output),
		TraceID: trace.ID,
		Metadata: map[string]any{
			"input_tokens":  cost.InputTokens,
			"output_tokens": cost.OutputTokens,
		},
	}, nil
}
