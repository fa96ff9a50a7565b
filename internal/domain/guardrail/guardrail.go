// Package guardrail provides the scorer classes behind policy rule types.
// Each scorer grades a text in [0,1], where higher means a stronger
// violation signal; the policy engine compares the value against the rule's
// threshold. All scorers are pure and compile their patterns at
// construction time.
package guardrail

import (
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/policy"
)

// ForRule builds the guardrail scorer for a rule's type and config.
// Config errors (missing keys, bad patterns) are construction errors;
// validation normally catches them before a policy is registered.
func ForRule(r policy.RuleConfig) (eval.Scorer, error) {
	switch r.Type {
	case policy.RuleKeyword:
		keywords, ok := policy.StringSliceConfig(r.Config, "keywords")
		if !ok || len(keywords) == 0 {
			return nil, fmt.Errorf("keyword rule %q: missing keywords", r.ID)
		}
		return NewKeyword(keywords), nil
	case policy.RuleRegex:
		patterns, ok := policy.StringSliceConfig(r.Config, "patterns")
		if !ok || len(patterns) == 0 {
			return nil, fmt.Errorf("regex rule %q: missing patterns", r.ID)
		}
		return NewRegex(patterns)
	case policy.RulePII:
		return NewPII(), nil
	case policy.RuleSensitiveData:
		return NewSensitiveData(), nil
	case policy.RuleToxicity:
		return NewToxicity(), nil
	case policy.RulePromptInjection:
		return NewPromptInjection(), nil
	case policy.RuleHallucination:
		return NewHallucination(), nil
	}
	return nil, fmt.Errorf("rule %q: unknown rule type %q", r.ID, r.Type)
}
