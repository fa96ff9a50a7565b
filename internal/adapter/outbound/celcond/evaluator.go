// Package celcond provides the CEL evaluator for guardrail rule conditions.
// A rule's optional condition expression decides whether the rule applies
// to a given input; expressions see the variables text, prompt, context,
// and metadata.
package celcond

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength is the maximum allowed length for condition expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single condition evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Input is the activation passed to a condition expression.
type Input struct {
	// Text is the content under evaluation.
	Text string
	// Prompt is the prompt that produced the text, when known.
	Prompt string
	// Context is caller-supplied grounding context, when known.
	Context string
	// Metadata is arbitrary evaluation metadata.
	Metadata map[string]any
}

// Evaluator compiles and evaluates CEL condition expressions.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates a CEL evaluator with the guardrail environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("prompt", cel.StringType),
		cel.Variable("context", cel.StringType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create condition environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a condition expression, returning a
// compiled program with cost and interrupt limits applied.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	if err := e.ValidateExpression(expression); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// ValidateExpression enforces the safety limits on a condition expression
// without producing a program.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	return validateNesting(expr)
}

// Evaluate runs a compiled condition against the input. A non-boolean
// result is an error.
func (e *Evaluator) Evaluate(prg cel.Program, in Input) (bool, error) {
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	activation := map[string]any{
		"text":     in.Text,
		"prompt":   in.Prompt,
		"context":  in.Context,
		"metadata": metadata,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// validateNesting checks that the expression does not exceed the maximum
// nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
