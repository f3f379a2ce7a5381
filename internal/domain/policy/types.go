// Package policy contains domain types for deciding which remote-desktop
// targets a caller may connect to.
package policy

import "errors"

// Action represents the result of a policy rule evaluation.
type Action string

const (
	// ActionAllow permits the connection.
	ActionAllow Action = "allow"
	// ActionDeny blocks the connection before any session is created.
	ActionDeny Action = "deny"
)

// IsValid returns true for the known actions.
func (a Action) IsValid() bool {
	return a == ActionAllow || a == ActionDeny
}

// ErrInvalidRule is returned when a rule cannot be compiled.
var ErrInvalidRule = errors.New("invalid target rule")

// Rule is a single target rule. Rules are evaluated in declaration order and
// the first whose condition holds decides.
type Rule struct {
	// Name is a human-readable name for this rule.
	Name string
	// Condition is a CEL expression over the evaluation context.
	Condition string
	// Action is applied when Condition evaluates to true.
	Action Action
}

// EvaluationContext is what a rule condition can see.
type EvaluationContext struct {
	// Target is the requested machine address.
	Target string
	// Principal is the remote login name, possibly empty.
	Principal string
	// DisplayName is the caller-supplied label, possibly empty.
	DisplayName string
	// UsesGateway is whether the gateway path was requested.
	UsesGateway bool
}

// Decision represents the outcome of policy evaluation for a connect request.
type Decision struct {
	// Allowed is true if the connection may proceed.
	Allowed bool
	// RuleName is the rule that produced this decision, empty for the default.
	RuleName string
	// Reason explains why the decision was made.
	Reason string
}
