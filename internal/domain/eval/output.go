package eval

import "encoding/json"

// Output is the tagged result of an adapter invocation. It is either a raw
// string or an enriched envelope produced by streaming adapters carrying the
// final output plus per-invocation telemetry.
type Output struct {
	// Raw is the plain output text. Unset when Enriched is present.
	Raw string `json:"raw,omitempty"`
	// Enriched, when non-nil, marks this as a streaming envelope.
	Enriched *Enriched `json:"enriched,omitempty"`
}

// Enriched is the streaming-adapter envelope.
type Enriched struct {
	// FinalOutput is the accumulated output text.
	FinalOutput string `json:"final_output"`
	// Metrics are adapter-captured latency and token counters.
	Metrics GenerationMetrics `json:"metrics"`
	// ToolsCalled records tool invocations observed in the stream.
	ToolsCalled []ToolCall `json:"tools_called,omitempty"`
	// Events are the raw stream events in arrival order.
	Events []StreamEvent `json:"events,omitempty"`
}

// GenerationMetrics are per-invocation telemetry counters.
type GenerationMetrics struct {
	LatencyMS           int64 `json:"latency_ms"`
	FirstTokenLatencyMS int64 `json:"first_token_latency_ms,omitempty"`
	InputTokens         int   `json:"input_tokens,omitempty"`
	OutputTokens        int   `json:"output_tokens,omitempty"`
}

// ToolCall records a single tool invocation seen during generation.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// StreamEvent is one server-sent event from a streaming adapter.
type StreamEvent struct {
	Type string `json:"type,omitempty"`
	Data string `json:"data"`
}

// RawOutput wraps a plain string output.
func RawOutput(s string) Output {
	return Output{Raw: s}
}

// EnrichedOutput wraps a streaming envelope.
func EnrichedOutput(e Enriched) Output {
	return Output{Enriched: &e}
}

// IsEnriched reports whether the output is a streaming envelope.
func (o Output) IsEnriched() bool { return o.Enriched != nil }

// Final returns the output text, unwrapping the envelope when present.
func (o Output) Final() string {
	if o.Enriched != nil {
		return o.Enriched.FinalOutput
	}
	return o.Raw
}
