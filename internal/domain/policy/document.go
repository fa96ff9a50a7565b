package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// document is the wire shape of a policy file. Optional fields use pointers
// so absent values can be defaulted (enabled=true, threshold=0.5,
// action=warn).
type document struct {
	Name        string         `yaml:"name" json:"name"`
	Version     string         `yaml:"version" json:"version"`
	Description string         `yaml:"description" json:"description"`
	Rules       []documentRule `yaml:"rules" json:"rules"`
}

type documentRule struct {
	ID        string         `yaml:"id" json:"id"`
	Type      string         `yaml:"type" json:"type"`
	Enabled   *bool          `yaml:"enabled" json:"enabled"`
	Threshold *float64       `yaml:"threshold" json:"threshold"`
	Action    string         `yaml:"action" json:"action"`
	Condition string         `yaml:"condition" json:"condition"`
	Config    map[string]any `yaml:"config" json:"config"`
}

// ParseDocument decodes a declarative policy document. YAML and JSON are
// both accepted (JSON is a YAML subset). Field defaults are applied; the
// result is NOT yet validated -- call Validate before registering.
func ParseDocument(data []byte) (*Policy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}

	p := &Policy{
		Name:        doc.Name,
		Version:     doc.Version,
		Description: doc.Description,
		Rules:       make([]RuleConfig, 0, len(doc.Rules)),
	}
	for _, r := range doc.Rules {
		rule := RuleConfig{
			ID:        r.ID,
			Type:      RuleType(r.Type),
			Enabled:   true,
			Threshold: DefaultThreshold,
			Action:    DefaultAction,
			Condition: r.Condition,
			Config:    r.Config,
		}
		if r.Enabled != nil {
			rule.Enabled = *r.Enabled
		}
		if r.Threshold != nil {
			rule.Threshold = *r.Threshold
		}
		if r.Action != "" {
			rule.Action = RuleAction(r.Action)
		}
		p.Rules = append(p.Rules, rule)
	}
	return p, nil
}
