// Package cel provides a CEL-based start policy. Operators can gate who may
// start a session, from where, and at what time with a single expression in
// the config file, e.g.:
//
//	location != "home" || hour >= 8
//	scope == "" || actor in ["u1", "u2"]
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
)

// maxExpressionLength is the maximum allowed length for policy expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// StartPolicy evaluates a compiled CEL expression to decide whether a
// session may be started. It implements session.StartPolicy.
//
// Available variables:
//
//	actor    string - ID of the user asking to start
//	location string - requested work location
//	scope    string - scope the request arrived in ("" for unscoped)
//	hour     int    - current UTC hour, 0-23
//	weekday  int    - current UTC weekday, 0=Sunday
type StartPolicy struct {
	prg   cel.Program
	clock clock.Clock
}

// newPolicyEnvironment creates the CEL environment with the start-policy
// variable declarations.
func newPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
	)
}

// NewStartPolicy compiles the expression and returns a ready policy.
// The expression must type-check to a boolean.
func NewStartPolicy(expression string, clk clock.Clock) (*StartPolicy, error) {
	if err := validateExpression(expression); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System{}
	}

	env, err := newPolicyEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create policy environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile policy expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy expression must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("build policy program: %w", err)
	}

	return &StartPolicy{prg: prg, clock: clk}, nil
}

// Allow evaluates the policy for one start request.
func (p *StartPolicy) Allow(ctx context.Context, actorID, location, scope string) (bool, error) {
	now := p.clock.Now()
	activation := map[string]any{
		"actor":    actorID,
		"location": location,
		"scope":    scope,
		"hour":     now.Hour(),
		"weekday":  int(now.Weekday()),
	}

	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := p.prg.ContextEval(evalCtx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy did not return a boolean, got %T", result.Value())
	}
	return allowed, nil
}

// validateExpression enforces compile-time safety limits before the
// expression reaches the CEL parser.
func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	return validateNesting(expr)
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
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

// Compile-time check that StartPolicy satisfies the domain interface.
var _ session.StartPolicy = (*StartPolicy)(nil)
