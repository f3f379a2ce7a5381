package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	celeval "github.com/netcore-rdp/rdportal/internal/adapter/outbound/cel"
	"github.com/netcore-rdp/rdportal/internal/domain/policy"
)

// CompiledTargetRule is a target rule with its CEL condition pre-compiled.
type CompiledTargetRule struct {
	Name      string
	Condition *celeval.Condition
	Action    policy.Action
}

// targetRulesSnapshot is the immutable rule set published to readers.
type targetRulesSnapshot struct {
	rules         []CompiledTargetRule
	defaultAction policy.Action
}

// TargetPolicy decides which targets may be connected to. Rules are
// evaluated in declaration order and the first matching rule wins; with no
// match the default action applies. Decisions are cached until the next
// Reload.
type TargetPolicy struct {
	evaluator *celeval.Evaluator
	snapshot  atomic.Pointer[targetRulesSnapshot]
	cache     *lruCache[policy.Decision]
	logger    *slog.Logger
}

var _ policy.Engine = (*TargetPolicy)(nil)

// NewTargetPolicy compiles rules and returns a ready policy. An empty
// defaultAction means allow.
func NewTargetPolicy(rules []policy.Rule, defaultAction policy.Action, logger *slog.Logger) (*TargetPolicy, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	p := &TargetPolicy{
		evaluator: evaluator,
		cache:     newLRUCache[policy.Decision](1000),
		logger:    logger,
	}
	if err := p.Reload(rules, defaultAction); err != nil {
		return nil, err
	}

	logger.Info("target policy initialized",
		"rules_compiled", len(rules),
		"default_action", p.snapshot.Load().defaultAction,
	)
	return p, nil
}

// ValidateRules checks every condition without installing the rules.
func (p *TargetPolicy) ValidateRules(rules []policy.Rule) error {
	for i, rule := range rules {
		if !rule.Action.IsValid() {
			return fmt.Errorf("rule %q: %w: unknown action %q", ruleName(rule, i), policy.ErrInvalidRule, rule.Action)
		}
		if _, err := p.evaluator.Compile(rule.Condition); err != nil {
			return fmt.Errorf("rule %q: %w", ruleName(rule, i), err)
		}
	}
	return nil
}

// Reload compiles rules and publishes them atomically. On error the
// previous rule set stays in effect.
func (p *TargetPolicy) Reload(rules []policy.Rule, defaultAction policy.Action) error {
	if defaultAction == "" {
		defaultAction = policy.ActionAllow
	}
	if !defaultAction.IsValid() {
		return fmt.Errorf("%w: unknown default action %q", policy.ErrInvalidRule, defaultAction)
	}

	compiled := make([]CompiledTargetRule, 0, len(rules))
	for i, rule := range rules {
		if !rule.Action.IsValid() {
			return fmt.Errorf("rule %q: %w: unknown action %q", ruleName(rule, i), policy.ErrInvalidRule, rule.Action)
		}
		cond, err := p.evaluator.Compile(rule.Condition)
		if err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", ruleName(rule, i), err)
		}
		compiled = append(compiled, CompiledTargetRule{
			Name:      ruleName(rule, i),
			Condition: cond,
			Action:    rule.Action,
		})
	}

	p.snapshot.Store(&targetRulesSnapshot{rules: compiled, defaultAction: defaultAction})
	p.cache.Clear()
	return nil
}

// RuleCount returns the number of active rules.
func (p *TargetPolicy) RuleCount() int {
	return len(p.snapshot.Load().rules)
}

// Evaluate decides whether the connection described by evalCtx may proceed.
// A rule that fails to evaluate denies the request and returns the error.
func (p *TargetPolicy) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext) (policy.Decision, error) {
	key := hashFields(evalCtx.Target, evalCtx.Principal, evalCtx.DisplayName, strconv.FormatBool(evalCtx.UsesGateway))
	if decision, ok := p.cache.Get(key); ok {
		return decision, nil
	}

	snapshot := p.snapshot.Load()
	for _, rule := range snapshot.rules {
		matched, err := rule.Condition.Matches(ctx, evalCtx)
		if err != nil {
			return policy.Decision{
				Allowed:  false,
				RuleName: rule.Name,
				Reason:   "rule evaluation failed",
			}, fmt.Errorf("rule %s evaluation failed: %w", rule.Name, err)
		}
		if !matched {
			continue
		}

		decision := policy.Decision{
			Allowed:  rule.Action == policy.ActionAllow,
			RuleName: rule.Name,
			Reason:   fmt.Sprintf("matched rule %s", rule.Name),
		}
		p.cache.Put(key, decision)
		return decision, nil
	}

	decision := policy.Decision{
		Allowed: snapshot.defaultAction == policy.ActionAllow,
		Reason:  fmt.Sprintf("no matching rule (default %s)", snapshot.defaultAction),
	}
	p.cache.Put(key, decision)
	return decision, nil
}

func ruleName(rule policy.Rule, i int) string {
	if rule.Name != "" {
		return rule.Name
	}
	return fmt.Sprintf("rule-%d", i+1)
}
