// Package policy decides whether an enabled automation loop keeps going
// after a failed operation. The decision is a Rego rule rather than a
// hard-coded constant, so operators can tune it without a rebuild.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decisions the automation policy may return.
const (
	DecisionContinue = "continue"
	DecisionPause    = "pause"
)

// Failure kinds passed to the policy as input.kind.
const (
	KindGenerationFailed  = "generation_failed"
	KindPromptScoreFailed = "prompt_score_failed"
)

// Engine evaluates automation failure decisions against a Rego policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the given policy source. The policy must define
// data.automation_policy.decision.
func NewEngine(ctx context.Context, policySource string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.automation_policy.decision"),
		rego.Module("automation_policy.rego", policySource),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision for one automation failure. Input keys:
// kind, consecutive_failures. A policy that yields no result or a
// non-string value pauses the loop, the conservative outcome.
func (e *Engine) Evaluate(ctx context.Context, input map[string]interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionPause, nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionPause, nil
}

// DefaultPolicy tolerates flaky evaluation runs up to a limit and stops
// immediately when generation collapses.
const DefaultPolicy = `
package automation_policy

default decision := "pause"

# Scoring hiccups are usually transient endpoint trouble. Keep the loop
# alive until they repeat.
decision := "continue" if {
	input.kind == "prompt_score_failed"
	input.consecutive_failures < 3
}
`
