package handlers

import (
	"context"
	"time"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// BreakAction stops the chain after this step by marking the context
// broken. The stop time is stored under "<step>.stopped_at".
type BreakAction struct{}

func (a *BreakAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	pctx.Set(step.Name+".stopped_at", time.Now().UTC().Format(time.RFC3339))
	if reason := step.Attrs["reason"]; reason != "" {
		pctx.Set(step.Name+".reason", reason)
	}
	pctx.MarkBroken()
	return chain.Succeeded(nil), nil
}
