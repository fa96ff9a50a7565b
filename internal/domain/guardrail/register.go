package guardrail

import (
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/policy"
	"github.com/evalgate/evalgate/internal/registry"
)

func init() {
	registry.Scorers.MustRegister("keyword", func(config map[string]any) (eval.Scorer, error) {
		keywords, ok := policy.StringSliceConfig(config, "keywords")
		if !ok || len(keywords) == 0 {
			return nil, fmt.Errorf("keyword scorer requires config key %q", "keywords")
		}
		return NewKeyword(keywords), nil
	})
	registry.Scorers.MustRegister("regex", func(config map[string]any) (eval.Scorer, error) {
		patterns, ok := policy.StringSliceConfig(config, "patterns")
		if !ok || len(patterns) == 0 {
			return nil, fmt.Errorf("regex scorer requires config key %q", "patterns")
		}
		return NewRegex(patterns)
	})
	registry.Scorers.MustRegister("pii", func(_ map[string]any) (eval.Scorer, error) {
		return NewPII(), nil
	})
	registry.Scorers.MustRegister("sensitive_data", func(_ map[string]any) (eval.Scorer, error) {
		return NewSensitiveData(), nil
	})
	registry.Scorers.MustRegister("toxicity", func(_ map[string]any) (eval.Scorer, error) {
		return NewToxicity(), nil
	})
	registry.Scorers.MustRegister("prompt_injection", func(_ map[string]any) (eval.Scorer, error) {
		return NewPromptInjection(), nil
	})
	registry.Scorers.MustRegister("hallucination", func(_ map[string]any) (eval.Scorer, error) {
		return NewHallucination(), nil
	})
}
