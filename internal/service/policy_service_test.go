package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/evalgate/evalgate/internal/domain/policy"
	"github.com/evalgate/evalgate/internal/service"
)

func newPolicyService(t *testing.T) *service.PolicyService {
	t.Helper()
	svc, err := service.NewPolicyService(nil, nil)
	if err != nil {
		t.Fatalf("NewPolicyService() error: %v", err)
	}
	return svc
}

func contentPolicy() *policy.Policy {
	return &policy.Policy{
		Name:    "content-safety",
		Version: "1",
		Rules: []policy.RuleConfig{
			{
				ID:        "no-secrets",
				Type:      policy.RuleKeyword,
				Enabled:   true,
				Threshold: 0.5,
				Action:    policy.ActionBlock,
				Config:    map[string]any{"keywords": []string{"secret"}},
			},
			{
				ID:        "toxicity",
				Type:      policy.RuleToxicity,
				Enabled:   true,
				Threshold: 0.5,
				Action:    policy.ActionWarn,
			},
		},
	}
}

func TestPolicyService_BlockShortCircuits(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	if err := svc.Register(contentPolicy()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "this is secret",
		PolicyName: "content-safety",
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if res.Action != policy.ActionBlock || res.Passed {
		t.Errorf("result = action %s passed %v, want block/false", res.Action, res.Passed)
	}
	if res.TriggeredRule == nil || res.TriggeredRule.ID != "no-secrets" {
		t.Errorf("triggered rule = %+v", res.TriggeredRule)
	}
	if len(res.Violations) != 1 || res.Violations[0].RuleID != "no-secrets" {
		t.Errorf("violations = %+v", res.Violations)
	}
	// The block short-circuits: the toxicity rule is never evaluated and
	// must not appear in the score summary.
	if _, ok := res.ScoreSummary["toxicity"]; ok {
		t.Errorf("score summary includes unevaluated rule: %v", res.ScoreSummary)
	}
	if v, ok := res.ScoreSummary["no-secrets"]; !ok || v < 0.5 {
		t.Errorf("score summary = %v", res.ScoreSummary)
	}
}

func TestPolicyService_WarnAccumulates(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	if err := svc.Register(contentPolicy()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "you are a worthless idiot",
		PolicyName: "content-safety",
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if res.Action != policy.ActionWarn || res.Passed {
		t.Errorf("result = action %s passed %v, want warn/false", res.Action, res.Passed)
	}
	if res.TriggeredRule != nil {
		t.Errorf("warn must not set a triggered rule: %+v", res.TriggeredRule)
	}
	// Both rules ran: the keyword rule scored 0, the toxicity rule tripped.
	if len(res.ScoreSummary) != 2 {
		t.Errorf("score summary = %v, want both rules", res.ScoreSummary)
	}
}

func TestPolicyService_LogOnlyViolationPasses(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	err := svc.Register(&policy.Policy{
		Name:    "audit-only",
		Version: "1",
		Rules: []policy.RuleConfig{{
			ID:        "watchword",
			Type:      policy.RuleKeyword,
			Enabled:   true,
			Threshold: 0.5,
			Action:    policy.ActionLog,
			Config:    map[string]any{"keywords": []string{"beta"}},
		}},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "the beta rollout continues",
		PolicyName: "audit-only",
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if res.Action != policy.ActionAllow || !res.Passed {
		t.Errorf("result = action %s passed %v, want allow/true", res.Action, res.Passed)
	}
	if len(res.Violations) != 1 || !res.Violations[0].Informational {
		t.Errorf("violations = %+v, want one informational", res.Violations)
	}
}

func TestPolicyService_ConditionGatesRule(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	err := svc.Register(&policy.Policy{
		Name:    "prod-only",
		Version: "1",
		Rules: []policy.RuleConfig{{
			ID:        "no-secrets",
			Type:      policy.RuleKeyword,
			Enabled:   true,
			Threshold: 0.5,
			Action:    policy.ActionBlock,
			Condition: `prompt == "prod"`,
			Config:    map[string]any{"keywords": []string{"secret"}},
		}},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	// Condition false: the rule is skipped entirely.
	res, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "this is secret",
		Prompt:     "dev",
		PolicyName: "prod-only",
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if res.Action != policy.ActionAllow || len(res.ScoreSummary) != 0 {
		t.Errorf("skipped rule still evaluated: %+v", res)
	}

	// Condition true: the rule applies and blocks.
	res, err = svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "this is secret",
		Prompt:     "prod",
		PolicyName: "prod-only",
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if res.Action != policy.ActionBlock {
		t.Errorf("action = %s, want block", res.Action)
	}
}

func TestPolicyService_DisabledRulesNeverRun(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	err := svc.Register(&policy.Policy{
		Name:    "dormant",
		Version: "1",
		Rules: []policy.RuleConfig{{
			ID:        "off",
			Type:      policy.RuleKeyword,
			Enabled:   false,
			Threshold: 0.5,
			Action:    policy.ActionBlock,
			Config:    map[string]any{"keywords": []string{"secret"}},
		}},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if _, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "this is secret",
		PolicyName: "dormant",
	}); !errors.Is(err, service.ErrNoRules) {
		t.Errorf("Evaluate() = %v, want ErrNoRules", err)
	}
}

func TestPolicyService_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	if err := svc.Register(contentPolicy()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := svc.Register(contentPolicy()); !errors.Is(err, service.ErrPolicyExists) {
		t.Errorf("second Register() = %v, want ErrPolicyExists", err)
	}
}

func TestPolicyService_ValidationDiagnostics(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	doc := []byte(`
name: broken
version: "1"
rules:
  - id: bad
    type: frobnicate
    threshold: 2.0
`)
	_, err := svc.LoadAndRegister(doc)
	var verr *policy.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("LoadAndRegister() = %v, want ValidationError", err)
	}
	if len(verr.Diagnostics) < 2 {
		t.Errorf("diagnostics = %+v, want unknown type and threshold findings", verr.Diagnostics)
	}
}

func TestPolicyService_RuleSelectionByID(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	if err := svc.Register(contentPolicy()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	res, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:    "this is secret",
		RuleIDs: []string{"toxicity"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	// Only the selected rule ran: the keyword hit goes unnoticed.
	if res.Action != policy.ActionAllow {
		t.Errorf("action = %s, want allow", res.Action)
	}
	if _, ok := res.ScoreSummary["no-secrets"]; ok {
		t.Errorf("unselected rule evaluated: %v", res.ScoreSummary)
	}
}

func TestPolicyService_UnknownPolicy(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	if _, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "x",
		PolicyName: "missing",
	}); !errors.Is(err, service.ErrPolicyNotFound) {
		t.Errorf("Evaluate() = %v, want ErrPolicyNotFound", err)
	}
}

func TestPolicyService_RegisteredPolicyImmutable(t *testing.T) {
	t.Parallel()

	svc := newPolicyService(t)
	p := contentPolicy()
	if err := svc.Register(p); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	// Mutating the caller's copy must not affect the registered policy.
	p.Rules[0].Action = policy.ActionLog

	res, err := svc.Evaluate(context.Background(), service.EvaluateRequest{
		Text:       "this is secret",
		PolicyName: "content-safety",
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if res.Action != policy.ActionBlock {
		t.Errorf("action = %s, want block from the registered rule", res.Action)
	}
}
