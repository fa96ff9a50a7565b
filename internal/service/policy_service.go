package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/evalgate/evalgate/internal/adapter/outbound/celcond"
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/guardrail"
	"github.com/evalgate/evalgate/internal/domain/policy"
)

// Error types for policy registration and evaluation.
var (
	// ErrPolicyExists is returned when registering a duplicate policy name.
	ErrPolicyExists = errors.New("policy already registered")
	// ErrPolicyNotFound is returned when an evaluation names an unknown
	// policy.
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrNoRules is returned when rule selection yields nothing to evaluate.
	ErrNoRules = errors.New("no rules selected")
)

// scorerErrorValue is the synthetic score recorded when a guardrail scorer
// or condition fails: the maximum, so the rule's threshold always trips
// (fail closed).
const scorerErrorValue = 1.0

// compiledRule is a registered rule with its scorer and optional condition
// program built up front.
type compiledRule struct {
	cfg     policy.RuleConfig
	scorer  eval.Scorer
	program cel.Program
}

type registeredPolicy struct {
	policy *policy.Policy
	rules  []compiledRule
}

// EvaluateRequest is one guardrail check.
type EvaluateRequest struct {
	// Text is the content under evaluation.
	Text string
	// Prompt is the prompt that produced the text, when known.
	Prompt string
	// Context is caller-supplied grounding context, when known.
	Context string
	// Metadata is arbitrary evaluation metadata, visible to conditions.
	Metadata map[string]any
	// PolicyName scopes the evaluation to one policy. Empty means all
	// registered policies in registration order.
	PolicyName string
	// RuleIDs, when non-empty, keeps only the named rules.
	RuleIDs []string
}

// PolicyService is the guardrail policy engine. Policies are validated and
// compiled at registration (scorers built, CEL conditions compiled) and
// immutable afterwards; evaluation walks the selected rules in declaration
// order.
type PolicyService struct {
	mu        sync.RWMutex
	policies  map[string]*registeredPolicy
	order     []string
	evaluator *celcond.Evaluator
	logger    *slog.Logger
	metrics   *Metrics
}

// NewPolicyService creates the policy engine. logger may be nil; metrics
// may be nil to disable instrumentation.
func NewPolicyService(logger *slog.Logger, metrics *Metrics) (*PolicyService, error) {
	evaluator, err := celcond.NewEvaluator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyService{
		policies:  make(map[string]*registeredPolicy),
		evaluator: evaluator,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// LoadAndRegister parses a declarative policy document and registers it.
func (s *PolicyService) LoadAndRegister(data []byte) (*policy.Policy, error) {
	p, err := policy.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if err := s.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Register validates and compiles a policy. All validation findings are
// reported at once; nothing is registered on failure. Rules are copied so
// later mutation of the argument cannot affect the registered policy.
func (s *PolicyService) Register(p *policy.Policy) error {
	if diags := p.Validate(); len(diags) > 0 {
		return &policy.ValidationError{PolicyName: p.Name, Diagnostics: diags}
	}

	reg := &registeredPolicy{
		policy: &policy.Policy{
			Name:        p.Name,
			Version:     p.Version,
			Description: p.Description,
			Rules:       append([]policy.RuleConfig(nil), p.Rules...),
		},
	}
	for _, r := range reg.policy.Rules {
		scorer, err := guardrail.ForRule(r)
		if err != nil {
			return fmt.Errorf("policy %q: %w", p.Name, err)
		}
		cr := compiledRule{cfg: r, scorer: scorer}
		if r.Condition != "" {
			prg, err := s.evaluator.Compile(r.Condition)
			if err != nil {
				return fmt.Errorf("policy %q rule %q condition: %w", p.Name, r.ID, err)
			}
			cr.program = prg
		}
		reg.rules = append(reg.rules, cr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.policies[p.Name]; exists {
		return fmt.Errorf("%w: %q", ErrPolicyExists, p.Name)
	}
	s.policies[p.Name] = reg
	s.order = append(s.order, p.Name)

	s.logger.Info("policy registered",
		"policy", p.Name,
		"version", p.Version,
		"rules", len(reg.rules))
	return nil
}

// GetPolicy returns a registered policy by name.
func (s *PolicyService) GetPolicy(name string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, name)
	}
	return reg.policy, nil
}

// ListPolicies returns the registered policy names in registration order.
func (s *PolicyService) ListPolicies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Evaluate checks text against the selected rules. Rules run in
// declaration order; a violated block rule short-circuits (later rules are
// not evaluated and do not appear in the score summary). Warn and log
// violations accumulate; log-only violations never fail the evaluation. A
// scorer or condition failure records a synthetic max-value violation that
// honours the rule's action.
func (s *PolicyService) Evaluate(ctx context.Context, req EvaluateRequest) (*policy.GuardrailResult, error) {
	rules, err := s.selectRules(req.PolicyName, req.RuleIDs)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	res := &policy.GuardrailResult{
		Action:       policy.ActionAllow,
		Passed:       true,
		Violations:   []policy.Violation{},
		ScoreSummary: make(map[string]float64, len(rules)),
	}

	condInput := celcond.Input{
		Text:     req.Text,
		Prompt:   req.Prompt,
		Context:  req.Context,
		Metadata: req.Metadata,
	}
	scoreMeta := scorerMetadata(req)
	output := eval.RawOutput(req.Text)

	for _, rule := range rules {
		if rule.program != nil {
			applies, condErr := s.evaluator.Evaluate(rule.program, condInput)
			if condErr != nil {
				s.logger.Warn("condition evaluation failed",
					"rule_id", rule.cfg.ID, "error", condErr)
				if s.recordFailure(res, rule.cfg, condErr) {
					return s.finish(res), nil
				}
				continue
			}
			if !applies {
				continue
			}
		}

		score, scoreErr := rule.scorer.Score(ctx, output, nil, scoreMeta)
		if scoreErr != nil {
			s.logger.Warn("guardrail scorer failed",
				"rule_id", rule.cfg.ID, "error", scoreErr)
			if s.recordFailure(res, rule.cfg, scoreErr) {
				return s.finish(res), nil
			}
			continue
		}

		value := score.Value.Float()
		res.ScoreSummary[rule.cfg.ID] = value
		if value < rule.cfg.Threshold {
			continue
		}

		res.Violations = append(res.Violations, policy.Violation{
			RuleID:        rule.cfg.ID,
			RuleType:      rule.cfg.Type,
			Action:        rule.cfg.Action,
			Value:         value,
			Threshold:     rule.cfg.Threshold,
			Comment:       score.Comment,
			Informational: rule.cfg.Action == policy.ActionLog,
		})
		if rule.cfg.Action == policy.ActionBlock {
			cfg := rule.cfg
			res.TriggeredRule = &cfg
			return s.finish(res), nil
		}
	}

	return s.finish(res), nil
}

// recordFailure appends the synthetic scorer-error violation and reports
// whether the rule's action short-circuits the evaluation.
func (s *PolicyService) recordFailure(res *policy.GuardrailResult, cfg policy.RuleConfig, cause error) bool {
	res.ScoreSummary[cfg.ID] = scorerErrorValue
	res.Violations = append(res.Violations, policy.Violation{
		RuleID:        cfg.ID,
		RuleType:      cfg.Type,
		Action:        cfg.Action,
		Value:         scorerErrorValue,
		Threshold:     cfg.Threshold,
		Comment:       cause.Error(),
		Informational: cfg.Action == policy.ActionLog,
		ScorerError:   true,
	})
	if cfg.Action == policy.ActionBlock {
		cfg := cfg
		res.TriggeredRule = &cfg
		return true
	}
	return false
}

// finish derives the overall action and pass flag from the accumulated
// violations and records the metric.
func (s *PolicyService) finish(res *policy.GuardrailResult) *policy.GuardrailResult {
	for _, v := range res.Violations {
		switch v.Action {
		case policy.ActionBlock:
			res.Action = policy.ActionBlock
			res.Passed = false
		case policy.ActionWarn:
			if res.Action != policy.ActionBlock {
				res.Action = policy.ActionWarn
			}
			res.Passed = false
		}
	}
	if s.metrics != nil {
		s.metrics.GuardrailChecks.WithLabelValues(string(res.Action)).Inc()
	}
	return res
}

// selectRules resolves the evaluation scope: one policy or all of them in
// registration order, optionally narrowed to explicit rule ids. Disabled
// rules never participate.
func (s *PolicyService) selectRules(policyName string, ruleIDs []string) ([]compiledRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scope []*registeredPolicy
	if policyName != "" {
		reg, ok := s.policies[policyName]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, policyName)
		}
		scope = []*registeredPolicy{reg}
	} else {
		for _, name := range s.order {
			scope = append(scope, s.policies[name])
		}
	}

	wanted := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		wanted[id] = struct{}{}
	}

	var rules []compiledRule
	for _, reg := range scope {
		for _, rule := range reg.rules {
			if !rule.cfg.Enabled {
				continue
			}
			if len(wanted) > 0 {
				if _, ok := wanted[rule.cfg.ID]; !ok {
					continue
				}
			}
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// scorerMetadata builds the read-only metadata guardrail scorers see.
func scorerMetadata(req EvaluateRequest) map[string]any {
	meta := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Prompt != "" {
		meta["prompt"] = req.Prompt
	}
	if req.Context != "" {
		meta["context"] = req.Context
	}
	return meta
}
