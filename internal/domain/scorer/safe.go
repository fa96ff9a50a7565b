package scorer

import (
	"context"
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Safe wraps a scorer so that an error or panic never aborts a run: the
// failure becomes a zero-valued score carrying the cause in its comment.
func Safe(wrapped eval.Scorer) eval.Scorer {
	return &safeScorer{wrapped: wrapped}
}

type safeScorer struct {
	wrapped eval.Scorer
}

func (s *safeScorer) Name() string   { return s.wrapped.Name() }
func (s *safeScorer) EvalID() string { return s.wrapped.EvalID() }

func (s *safeScorer) Score(ctx context.Context, generated eval.Output, expected any, metadata map[string]any) (score eval.Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = s.failure(fmt.Sprintf("scorer panicked: %v", r))
			err = nil
		}
	}()

	score, scoreErr := s.wrapped.Score(ctx, generated, expected, metadata)
	if scoreErr != nil {
		return s.failure(fmt.Sprintf("scorer failed: %v", scoreErr)), nil
	}
	return score, nil
}

func (s *safeScorer) failure(comment string) eval.Score {
	return eval.Score{
		Name:    s.wrapped.Name(),
		Value:   eval.Number(0),
		EvalID:  s.wrapped.EvalID(),
		Comment: comment,
	}
}
