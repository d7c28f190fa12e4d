package handlers

import (
	"context"
	"fmt"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// AssertAction evaluates a condition against the context and fails the step
// when it is false. Results are visible as "<handler>.success".
type AssertAction struct{}

func (a *AssertAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	expr := step.Attrs["expr"]
	if expr == "" {
		return nil, chain.Permanent(fmt.Errorf("assert step %q: missing required 'expr' attribute", step.Name))
	}

	ok, err := definition.EvalCondition(expr, templateData(pctx))
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("assert step %q: %w", step.Name, err))
	}
	if !ok {
		msg := step.Attrs["message"]
		if msg == "" {
			msg = "assertion failed"
		}
		return chain.Failed("ASSERTION_FAILED", msg), fmt.Errorf("assert step %q: %s: expr=%q", step.Name, msg, expr)
	}
	return chain.Succeeded(nil), nil
}
