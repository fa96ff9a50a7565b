package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Regex flags text matching any of the configured patterns. A match
// scores 1.0.
type Regex struct {
	patterns []*regexp.Regexp
}

// NewRegex creates a regex scorer. All patterns are compiled up front.
func NewRegex(patterns []string) (*Regex, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Regex{patterns: compiled}, nil
}

// Name implements eval.Scorer.
func (r *Regex) Name() string { return "guardrail_regex" }

// EvalID implements eval.Scorer.
func (r *Regex) EvalID() string { return "guardrail.regex.v1" }

// Score implements eval.Scorer.
func (r *Regex) Score(_ context.Context, generated eval.Output, _ any, _ map[string]any) (eval.Score, error) {
	text := generated.Final()
	var matched []string
	for _, re := range r.patterns {
		if re.MatchString(text) {
			matched = append(matched, re.String())
		}
	}

	score := eval.Score{Name: r.Name(), EvalID: r.EvalID(), Value: eval.Number(0)}
	if len(matched) > 0 {
		score.Value = eval.Number(1)
		score.Comment = fmt.Sprintf("matched patterns: %s", strings.Join(matched, ", "))
	}
	return score, nil
}
