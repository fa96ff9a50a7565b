package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Keyword flags text containing any of the configured keywords
// (case-insensitive substring match). A hit scores 1.0.
type Keyword struct {
	keywords []string
}

// NewKeyword creates a keyword scorer.
func NewKeyword(keywords []string) *Keyword {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Keyword{keywords: lowered}
}

// Name implements eval.Scorer.
func (k *Keyword) Name() string { return "guardrail_keyword" }

// EvalID implements eval.Scorer.
func (k *Keyword) EvalID() string { return "guardrail.keyword.v1" }

// Score implements eval.Scorer.
func (k *Keyword) Score(_ context.Context, generated eval.Output, _ any, _ map[string]any) (eval.Score, error) {
	text := strings.ToLower(generated.Final())
	var matched []string
	for _, kw := range k.keywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}

	score := eval.Score{Name: k.Name(), EvalID: k.EvalID(), Value: eval.Number(0)}
	if len(matched) > 0 {
		score.Value = eval.Number(1)
		score.Comment = fmt.Sprintf("matched keywords: %s", strings.Join(matched, ", "))
	}
	return score, nil
}
