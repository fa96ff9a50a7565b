// Package scorer provides the built-in reference scorers and the wrappers
// the engine composes around user scorers: failure isolation and
// enriched-output unwrapping.
package scorer

import (
	"context"
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// ExactMatch grades true when the generated output text equals the expected
// value exactly. Non-string expected values are compared against their
// default string rendering.
type ExactMatch struct{}

// Name implements eval.Scorer.
func (ExactMatch) Name() string { return "exact" }

// EvalID implements eval.Scorer.
func (ExactMatch) EvalID() string { return "exact_match.v1" }

// Score implements eval.Scorer.
func (ExactMatch) Score(_ context.Context, generated eval.Output, expected any, _ map[string]any) (eval.Score, error) {
	want, ok := expected.(string)
	if !ok && expected != nil {
		want = fmt.Sprint(expected)
	}
	return eval.Score{
		Name:   "exact",
		Value:  eval.Boolean(generated.Final() == want),
		EvalID: "exact_match.v1",
	}, nil
}
