package scorer

import (
	"context"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Metadata keys promoted from the streaming envelope onto scores.
const (
	MetaLatencyMS           = "latency_ms"
	MetaFirstTokenLatencyMS = "first_token_latency_ms"
	MetaInputTokens         = "input_tokens"
	MetaOutputTokens        = "output_tokens"
	MetaToolsCalled         = "tools_called"
	MetaEventCount          = "event_count"
)

// Enriched wraps a scorer so it can grade outputs from streaming adapters:
// the envelope's final output is forwarded to the wrapped scorer, and the
// adapter-captured latency/token/tool telemetry is promoted into the
// returned score's metadata. Raw outputs pass through untouched.
func Enriched(wrapped eval.Scorer) eval.Scorer {
	return &enrichedScorer{wrapped: wrapped}
}

type enrichedScorer struct {
	wrapped eval.Scorer
}

func (s *enrichedScorer) Name() string   { return s.wrapped.Name() }
func (s *enrichedScorer) EvalID() string { return s.wrapped.EvalID() }

func (s *enrichedScorer) Score(ctx context.Context, generated eval.Output, expected any, metadata map[string]any) (eval.Score, error) {
	if !generated.IsEnriched() {
		return s.wrapped.Score(ctx, generated, expected, metadata)
	}

	env := generated.Enriched
	score, err := s.wrapped.Score(ctx, eval.RawOutput(env.FinalOutput), expected, metadata)
	if err != nil {
		return score, err
	}

	if score.Metadata == nil {
		score.Metadata = make(map[string]any, 6)
	}
	score.Metadata[MetaLatencyMS] = env.Metrics.LatencyMS
	if env.Metrics.FirstTokenLatencyMS > 0 {
		score.Metadata[MetaFirstTokenLatencyMS] = env.Metrics.FirstTokenLatencyMS
	}
	if env.Metrics.InputTokens > 0 {
		score.Metadata[MetaInputTokens] = env.Metrics.InputTokens
	}
	if env.Metrics.OutputTokens > 0 {
		score.Metadata[MetaOutputTokens] = env.Metrics.OutputTokens
	}
	if len(env.ToolsCalled) > 0 {
		names := make([]string, len(env.ToolsCalled))
		for i, tc := range env.ToolsCalled {
			names[i] = tc.Name
		}
		score.Metadata[MetaToolsCalled] = names
	}
	if len(env.Events) > 0 {
		score.Metadata[MetaEventCount] = len(env.Events)
	}

	return score, nil
}
