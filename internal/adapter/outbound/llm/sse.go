package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// sseDone is the sentinel data line closing an event stream.
const sseDone = "[DONE]"

// streamChunk is one OpenAI-compatible streaming delta.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// SSEAdapter generates outputs by consuming a server-sent-events stream
// from an OpenAI-compatible endpoint. It accumulates content deltas,
// tool-call records, and latency/token counters into the enriched
// envelope.
type SSEAdapter struct {
	http *HTTPAdapter
}

// NewSSEAdapter creates a streaming adapter targeting an OpenAI-compatible
// chat completion endpoint.
func NewSSEAdapter(endpoint string, opts ...HTTPOption) *SSEAdapter {
	return &SSEAdapter{http: NewHTTPAdapter(endpoint, opts...)}
}

// Generate streams a chat completion and returns the enriched envelope.
func (a *SSEAdapter) Generate(ctx context.Context, input map[string]any, model string) (eval.Generation, error) {
	if model == "" {
		model = a.http.model
	}

	body, err := json.Marshal(a.http.buildRequest(input, model, true))
	if err != nil {
		return eval.Generation{}, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	resp, err := a.http.do(ctx, body, "text/event-stream")
	if err != nil {
		return eval.Generation{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var (
		final      strings.Builder
		env        eval.Enriched
		firstToken time.Duration
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxResponseSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == sseDone {
			break
		}

		env.Events = append(env.Events, eval.StreamEvent{Data: data})

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return eval.Generation{}, fmt.Errorf("invalid stream event: %w", err)
		}
		if chunk.Usage != nil {
			env.Metrics.InputTokens = chunk.Usage.PromptTokens
			env.Metrics.OutputTokens = chunk.Usage.CompletionTokens
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if firstToken == 0 {
					firstToken = time.Since(start)
				}
				final.WriteString(choice.Delta.Content)
			}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.Function.Name == "" {
					continue
				}
				env.ToolsCalled = append(env.ToolsCalled, eval.ToolCall{
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return eval.Generation{}, fmt.Errorf("read stream: %w", err)
	}

	env.FinalOutput = final.String()
	env.Metrics.LatencyMS = time.Since(start).Milliseconds()
	env.Metrics.FirstTokenLatencyMS = firstToken.Milliseconds()

	return eval.Generation{
		Output:  eval.EnrichedOutput(env),
		TraceID: resp.Header.Get("X-Trace-Id"),
		Metadata: map[string]any{
			"latency_ms":    env.Metrics.LatencyMS,
			"input_tokens":  env.Metrics.InputTokens,
			"output_tokens": env.Metrics.OutputTokens,
		},
	}, nil
}
