package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// SleepAction pauses the chain for a fixed duration. The sleep is
// cancellable via the context, which is how step timeouts interrupt it.
type SleepAction struct{}

func (a *SleepAction) Run(ctx context.Context, step *definition.Step, _ *chain.Context) (*chain.Result, error) {
	durStr := step.Attrs["duration"]
	if durStr == "" {
		return nil, chain.Permanent(fmt.Errorf("sleep step %q: missing required 'duration' attribute", step.Name))
	}
	dur, err := time.ParseDuration(durStr)
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("sleep step %q: invalid duration %q: %w", step.Name, durStr, err))
	}

	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sleep step %q: cancelled: %w", step.Name, ctx.Err())
	case <-timer.C:
		return chain.Succeeded(dur.String()), nil
	}
}
