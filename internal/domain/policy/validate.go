package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Diagnostic is a single validation finding for a policy document.
type Diagnostic struct {
	// RuleID is empty for policy-level findings.
	RuleID string
	// Message describes the problem.
	Message string
}

func (d Diagnostic) String() string {
	if d.RuleID == "" {
		return d.Message
	}
	return fmt.Sprintf("rule %q: %s", d.RuleID, d.Message)
}

// ValidationError wraps the diagnostics of a failed validation so callers
// can report all findings at once.
type ValidationError struct {
	PolicyName  string
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	name := e.PolicyName
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("policy %s invalid: %s", name, strings.Join(msgs, "; "))
}

// requiredConfigKeys maps rule types to the config keys they must carry.
var requiredConfigKeys = map[RuleType][]string{
	RuleRegex:   {"patterns"},
	RuleKeyword: {"keywords"},
}

// Validate checks the policy against the registration rules: non-empty name,
// at least one rule, unique rule ids, known rule types, threshold in [0,1],
// valid action, and type-specific required config keys. It returns every
// finding rather than stopping at the first.
func (p *Policy) Validate() []Diagnostic {
	var diags []Diagnostic

	if strings.TrimSpace(p.Name) == "" {
		diags = append(diags, Diagnostic{Message: "name must not be empty"})
	}
	if len(p.Rules) == 0 {
		diags = append(diags, Diagnostic{Message: "policy must contain at least one rule"})
	}

	seen := make(map[string]struct{}, len(p.Rules))
	for i, r := range p.Rules {
		id := r.ID
		if strings.TrimSpace(id) == "" {
			diags = append(diags, Diagnostic{Message: fmt.Sprintf("rules[%d]: id must not be empty", i)})
			continue
		}
		if _, dup := seen[id]; dup {
			diags = append(diags, Diagnostic{RuleID: id, Message: "duplicate rule id"})
		}
		seen[id] = struct{}{}

		if !r.Type.Valid() {
			diags = append(diags, Diagnostic{RuleID: id, Message: fmt.Sprintf("unknown rule type %q", r.Type)})
		}
		if r.Threshold < 0 || r.Threshold > 1 {
			diags = append(diags, Diagnostic{RuleID: id, Message: fmt.Sprintf("threshold %g out of range [0,1]", r.Threshold)})
		}
		if !r.Action.Valid() {
			diags = append(diags, Diagnostic{RuleID: id, Message: fmt.Sprintf("action %q must be one of: block, warn, log", r.Action)})
		}
		diags = append(diags, validateRuleConfig(r)...)
	}

	return diags
}

// validateRuleConfig checks the type-specific required config keys and,
// for regex rules, that every pattern compiles.
func validateRuleConfig(r RuleConfig) []Diagnostic {
	var diags []Diagnostic

	for _, key := range requiredConfigKeys[r.Type] {
		values, ok := stringSliceConfig(r.Config, key)
		if !ok || len(values) == 0 {
			diags = append(diags, Diagnostic{RuleID: r.ID, Message: fmt.Sprintf("%s rule requires non-empty config key %q", r.Type, key)})
		}
	}

	if r.Type == RuleRegex {
		patterns, _ := stringSliceConfig(r.Config, "patterns")
		for _, pat := range patterns {
			if _, err := regexp.Compile(pat); err != nil {
				diags = append(diags, Diagnostic{RuleID: r.ID, Message: fmt.Sprintf("invalid pattern %q: %v", pat, err)})
			}
		}
	}

	return diags
}

// StringSliceConfig extracts a []string config value. YAML decoding yields
// []any, so both representations are accepted.
func StringSliceConfig(cfg map[string]any, key string) ([]string, bool) {
	return stringSliceConfig(cfg, key)
}

func stringSliceConfig(cfg map[string]any, key string) ([]string, bool) {
	raw, ok := cfg[key]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
