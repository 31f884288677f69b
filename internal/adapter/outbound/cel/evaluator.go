// Package cel provides a CEL-based evaluator for admission bypass rules.
//
// Operators can exempt traffic from rate limiting with small boolean
// expressions over request attributes, e.g.
//
//	ip == "10.0.0.8"
//	path.startsWith("/api/webhooks/") && authenticated
//	user_type == "auth" && method == "GET"
//
// A request matching any rule skips admission checks entirely.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// RuleSpec is an operator-defined bypass rule prior to compilation.
type RuleSpec struct {
	Name      string
	Condition string
}

// RequestAttributes are the variables exposed to bypass expressions.
type RequestAttributes struct {
	IP            string
	Path          string
	Method        string
	Authenticated bool
	UserType      string // "guest" or "auth"
}

// compiledRule pairs a rule name with its compiled program.
type compiledRule struct {
	name string
	prg  cel.Program
}

// BypassEvaluator compiles and evaluates bypass rules.
// Compilation happens once at startup; evaluation is read-only and safe for
// concurrent use.
type BypassEvaluator struct {
	env   *cel.Env
	rules []compiledRule
}

// NewBypassEnvironment creates the CEL environment for bypass expressions.
func NewBypassEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		cel.Variable("ip", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("user_type", cel.StringType),
	)
}

// NewBypassEvaluator compiles the given rules.
// Invalid expressions fail construction so configuration errors surface at
// startup rather than per request.
func NewBypassEvaluator(specs []RuleSpec) (*BypassEvaluator, error) {
	env, err := NewBypassEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create bypass environment: %w", err)
	}

	e := &BypassEvaluator{env: env, rules: make([]compiledRule, 0, len(specs))}
	for _, spec := range specs {
		if err := validateExpression(spec.Condition); err != nil {
			return nil, fmt.Errorf("bypass rule %q: %w", spec.Name, err)
		}
		prg, err := e.compile(spec.Condition)
		if err != nil {
			return nil, fmt.Errorf("bypass rule %q: %w", spec.Name, err)
		}
		e.rules = append(e.rules, compiledRule{name: spec.Name, prg: prg})
	}
	return e, nil
}

// compile parses and type-checks a CEL expression, returning a compiled program.
func (e *BypassEvaluator) compile(expression string) (cel.Program, error) {
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

// Match evaluates the rules in order and returns the name of the first rule
// the request satisfies. Evaluation errors make the individual rule not
// match: a broken rule can never open a bypass wider than written.
func (e *BypassEvaluator) Match(attrs RequestAttributes) (string, bool) {
	if e == nil || len(e.rules) == 0 {
		return "", false
	}

	activation := map[string]any{
		"ip":            attrs.IP,
		"path":          attrs.Path,
		"method":        attrs.Method,
		"authenticated": attrs.Authenticated,
		"user_type":     attrs.UserType,
	}

	for _, rule := range e.rules {
		ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		result, _, err := rule.prg.ContextEval(ctx, activation)
		cancel()
		if err != nil {
			continue
		}
		if matched, ok := result.Value().(bool); ok && matched {
			return rule.name, true
		}
	}
	return "", false
}

// validateExpression enforces safety limits before compilation.
func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

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
