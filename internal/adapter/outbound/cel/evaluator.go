// Package cel compiles and evaluates the CEL conditions of target rules.
package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/netcore-rdp/rdportal/internal/domain/policy"
)

// Limits applied to every rule condition.
const (
	maxExpressionLength = 1024
	maxCostBudget       = 100_000
	maxNestingDepth     = 50
	evalTimeout         = time.Second
	interruptCheckFreq  = 100
)

// Evaluator compiles target-rule conditions against the target environment.
// It is safe for concurrent use.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator builds the target environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewTargetEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create target environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Condition is a compiled rule condition. The zero value and conditions
// compiled from an empty expression match every target.
type Condition struct {
	source string
	prg    cel.Program
}

// Source returns the expression the condition was compiled from.
func (c *Condition) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Compile checks expr against the length and nesting limits, then parses and
// type-checks it. The expression must yield a boolean.
func (e *Evaluator) Compile(expr string) (*Condition, error) {
	if expr == "" {
		return &Condition{}, nil
	}
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("%w: expression too long: %d characters (max %d)",
			policy.ErrInvalidRule, len(expr), maxExpressionLength)
	}
	if depth := nestingDepth(expr); depth > maxNestingDepth {
		return nil, fmt.Errorf("%w: expression nesting too deep: %d levels (max %d)",
			policy.ErrInvalidRule, depth, maxNestingDepth)
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", policy.ErrInvalidRule, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: condition must be boolean, got %s", policy.ErrInvalidRule, ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return &Condition{source: expr, prg: prg}, nil
}

// Matches evaluates the condition for one connect request. Evaluation is
// bounded by evalTimeout and the cost limit.
func (c *Condition) Matches(ctx context.Context, evalCtx policy.EvaluationContext) (bool, error) {
	if c == nil || c.prg == nil {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := c.prg.ContextEval(ctx, BuildActivation(evalCtx))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

// nestingDepth is the deepest bracket nesting in expr.
func nestingDepth(expr string) int {
	var depth, deepest int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			deepest = max(deepest, depth)
		case ')', ']', '}':
			depth--
		}
	}
	return deepest
}
