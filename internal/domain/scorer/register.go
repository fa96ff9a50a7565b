package scorer

import (
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/registry"
)

func init() {
	registry.Scorers.MustRegister("exact", func(_ map[string]any) (eval.Scorer, error) {
		return ExactMatch{}, nil
	})
}
