// Package policy contains domain types for guardrail policies: rule
// configuration, policy documents, validation, and evaluation results.
package policy

// RuleType identifies the guardrail scorer class a rule maps to.
type RuleType string

// The closed set of rule types.
const (
	RuleHallucination   RuleType = "hallucination"
	RulePromptInjection RuleType = "prompt_injection"
	RuleToxicity        RuleType = "toxicity"
	RulePII             RuleType = "pii"
	RuleSensitiveData   RuleType = "sensitive_data"
	RuleRegex           RuleType = "regex"
	RuleKeyword         RuleType = "keyword"
)

// KnownRuleTypes lists every valid rule type.
var KnownRuleTypes = []RuleType{
	RuleHallucination,
	RulePromptInjection,
	RuleToxicity,
	RulePII,
	RuleSensitiveData,
	RuleRegex,
	RuleKeyword,
}

// Valid reports whether the rule type is in the closed set.
func (t RuleType) Valid() bool {
	for _, known := range KnownRuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RuleAction is what happens when a rule is violated.
type RuleAction string

const (
	// ActionBlock stops evaluation immediately; remaining rules do not run.
	ActionBlock RuleAction = "block"
	// ActionWarn records the violation and continues.
	ActionWarn RuleAction = "warn"
	// ActionLog records the violation as informational and continues.
	ActionLog RuleAction = "log"
	// ActionAllow is a result-only action: no block/warn rule was violated.
	ActionAllow RuleAction = "allow"
)

// Valid reports whether the action is a configurable rule action.
func (a RuleAction) Valid() bool {
	return a == ActionBlock || a == ActionWarn || a == ActionLog
}

// Defaults applied to rules when the document omits the field.
const (
	DefaultThreshold = 0.5
	DefaultAction    = ActionWarn
)

// RuleConfig is a single guardrail rule within a policy. Immutable after
// the policy is registered.
type RuleConfig struct {
	// ID is unique within the policy.
	ID string `json:"id" yaml:"id"`
	// Type selects the guardrail scorer class.
	Type RuleType `json:"type" yaml:"type"`
	// Enabled rules participate in evaluation. Defaults to true.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Threshold in [0,1]: the rule is violated when score >= threshold.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// Action taken on violation.
	Action RuleAction `json:"action" yaml:"action"`
	// Condition is an optional CEL expression over {text, prompt, context,
	// metadata}; when present and false, the rule is skipped for the input.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	// Config carries rule-specific settings (e.g. regex patterns, keywords).
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Policy is a named, versioned, ordered rule set. A policy's name is unique
// within the engine; rules are immutable after registration.
type Policy struct {
	Name        string       `json:"name" yaml:"name"`
	Version     string       `json:"version" yaml:"version"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []RuleConfig `json:"rules" yaml:"rules"`
}

// Violation records one violated (or errored) rule during evaluation.
type Violation struct {
	// RuleID is the violated rule.
	RuleID string `json:"rule_id"`
	// RuleType is the rule's scorer class.
	RuleType RuleType `json:"rule_type"`
	// Action is the rule's configured action.
	Action RuleAction `json:"action"`
	// Value is the guardrail score that tripped the threshold.
	Value float64 `json:"value"`
	// Threshold is the rule's configured threshold.
	Threshold float64 `json:"threshold"`
	// Comment carries the scorer's explanation or the error cause.
	Comment string `json:"comment,omitempty"`
	// Informational marks log-action violations, which never fail the
	// evaluation.
	Informational bool `json:"informational,omitempty"`
	// ScorerError is set when the guardrail scorer itself failed; the
	// violation then carries a synthetic max-value score (safe default).
	ScorerError bool `json:"scorer_error,omitempty"`
}

// GuardrailResult is the outcome of evaluating text against a rule set.
type GuardrailResult struct {
	// Action is block when a block rule was violated, else warn when any
	// warn rule was violated, else allow.
	Action RuleAction `json:"action"`
	// Passed is true when no rule with action block or warn was violated.
	Passed bool `json:"passed"`
	// TriggeredRule is the block rule that short-circuited evaluation.
	TriggeredRule *RuleConfig `json:"triggered_rule,omitempty"`
	// Violations lists violated rules in evaluation order.
	Violations []Violation `json:"violations"`
	// ScoreSummary maps rule id to guardrail score for every rule that was
	// actually evaluated. Rules after a block short-circuit do not appear.
	ScoreSummary map[string]float64 `json:"score_summary"`
}
