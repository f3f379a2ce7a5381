package policy

import "context"

// Engine evaluates connect requests against the configured target rules.
type Engine interface {
	// Evaluate returns the decision for evalCtx.
	Evaluate(ctx context.Context, evalCtx EvaluationContext) (Decision, error)
}

// AllowAll is the Engine used when no rules are configured.
type AllowAll struct{}

// Evaluate always allows.
func (AllowAll) Evaluate(context.Context, EvaluationContext) (Decision, error) {
	return Decision{Allowed: true, Reason: "no target rules configured"}, nil
}
