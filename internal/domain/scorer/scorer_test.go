package scorer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

func TestExactMatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name      string
		generated eval.Output
		expected  any
		want      bool
	}{
		{"match", eval.RawOutput("x"), "x", true},
		{"mismatch", eval.RawOutput("x"), "y", false},
		{"enriched match", eval.EnrichedOutput(eval.Enriched{FinalOutput: "x"}), "x", true},
		{"non-string expected", eval.RawOutput("42"), 42, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			score, err := ExactMatch{}.Score(ctx, tt.generated, tt.expected, nil)
			if err != nil {
				t.Fatalf("Score() error: %v", err)
			}
			if score.Name != "exact" {
				t.Errorf("name = %q, want exact", score.Name)
			}
			if score.Value.Bool() != tt.want {
				t.Errorf("value = %v, want %v", score.Value.Bool(), tt.want)
			}
		})
	}
}

type failingScorer struct {
	err   error
	panic bool
}

func (failingScorer) Name() string   { return "broken" }
func (failingScorer) EvalID() string { return "broken.v1" }
func (f failingScorer) Score(context.Context, eval.Output, any, map[string]any) (eval.Score, error) {
	if f.panic {
		panic("kaboom")
	}
	return eval.Score{}, f.err
}

func TestSafe_ErrorBecomesZeroScore(t *testing.T) {
	t.Parallel()

	s := Safe(failingScorer{err: errors.New("model unavailable")})
	score, err := s.Score(context.Background(), eval.RawOutput("x"), nil, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if score.Name != "broken" {
		t.Errorf("name = %q, want broken", score.Name)
	}
	if score.Value.Float() != 0 {
		t.Errorf("value = %g, want 0", score.Value.Float())
	}
	if !strings.Contains(score.Comment, "model unavailable") {
		t.Errorf("comment %q does not record the cause", score.Comment)
	}
}

func TestSafe_PanicBecomesZeroScore(t *testing.T) {
	t.Parallel()

	s := Safe(failingScorer{panic: true})
	score, err := s.Score(context.Background(), eval.RawOutput("x"), nil, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if score.Value.Float() != 0 || !strings.Contains(score.Comment, "kaboom") {
		t.Errorf("panic not converted: %+v", score)
	}
}

func TestEnriched_UnwrapsAndPromotesTelemetry(t *testing.T) {
	t.Parallel()

	generated := eval.EnrichedOutput(eval.Enriched{
		FinalOutput: "x",
		Metrics: eval.GenerationMetrics{
			LatencyMS:    1200,
			InputTokens:  42,
			OutputTokens: 7,
		},
		ToolsCalled: []eval.ToolCall{{Name: "search"}},
		Events:      []eval.StreamEvent{{Data: "a"}, {Data: "b"}},
	})

	score, err := Enriched(ExactMatch{}).Score(context.Background(), generated, "x", nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if !score.Value.Bool() {
		t.Error("wrapped scorer did not see the unwrapped final output")
	}
	if score.Metadata[MetaLatencyMS] != int64(1200) {
		t.Errorf("latency_ms = %v, want 1200", score.Metadata[MetaLatencyMS])
	}
	if score.Metadata[MetaInputTokens] != 42 {
		t.Errorf("input_tokens = %v, want 42", score.Metadata[MetaInputTokens])
	}
	tools, ok := score.Metadata[MetaToolsCalled].([]string)
	if !ok || len(tools) != 1 || tools[0] != "search" {
		t.Errorf("tools_called = %v, want [search]", score.Metadata[MetaToolsCalled])
	}
	if score.Metadata[MetaEventCount] != 2 {
		t.Errorf("event_count = %v, want 2", score.Metadata[MetaEventCount])
	}
}

func TestEnriched_RawPassesThrough(t *testing.T) {
	t.Parallel()

	score, err := Enriched(ExactMatch{}).Score(context.Background(), eval.RawOutput("x"), "x", nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if _, ok := score.Metadata[MetaLatencyMS]; ok {
		t.Error("raw output should not gain envelope metadata")
	}
}
