package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Hallucination estimates how much of the generated text is ungrounded in
// the expected reference (or, when no expected value is available, the
// prompt carried in metadata). The score is the fraction of content words
// in the output that do not appear in the reference: 0 means fully
// grounded, 1 means nothing overlaps.
type Hallucination struct{}

// NewHallucination creates the grounding-overlap hallucination scorer.
func NewHallucination() eval.Scorer { return &Hallucination{} }

// Name implements eval.Scorer.
func (Hallucination) Name() string { return "guardrail_hallucination" }

// EvalID implements eval.Scorer.
func (Hallucination) EvalID() string { return "guardrail.hallucination.v1" }

// Score implements eval.Scorer.
func (h Hallucination) Score(_ context.Context, generated eval.Output, expected any, metadata map[string]any) (eval.Score, error) {
	reference := referenceText(expected, metadata)
	score := eval.Score{Name: h.Name(), EvalID: h.EvalID(), Value: eval.Number(0)}

	words := contentWords(generated.Final())
	if len(words) == 0 {
		return score, nil
	}
	if reference == "" {
		// Nothing to ground against; stay silent rather than guess.
		score.Comment = "no reference text available"
		return score, nil
	}

	grounding := make(map[string]struct{})
	for _, w := range contentWords(reference) {
		grounding[w] = struct{}{}
	}

	var ungrounded int
	for _, w := range words {
		if _, ok := grounding[w]; !ok {
			ungrounded++
		}
	}

	value := float64(ungrounded) / float64(len(words))
	score.Value = eval.Number(value)
	score.Comment = fmt.Sprintf("%d/%d content words ungrounded", ungrounded, len(words))
	return score, nil
}

func referenceText(expected any, metadata map[string]any) string {
	if s, ok := expected.(string); ok && s != "" {
		return s
	}
	for _, key := range []string{"context", "prompt"} {
		if s, ok := metadata[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// contentWords lowercases and splits the text, dropping words of fewer
// than four characters so stopwords don't dominate the overlap.
func contentWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 4 {
			out = append(out, f)
		}
	}
	return out
}
