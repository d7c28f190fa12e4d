package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// EnvAction copies an OS environment variable into the context.
type EnvAction struct{}

func (a *EnvAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	key := step.Attrs["key"]
	if key == "" {
		return nil, chain.Permanent(fmt.Errorf("env step %q: missing required 'key' attribute", step.Name))
	}
	from := step.Attrs["from"]
	if from == "" {
		return nil, chain.Permanent(fmt.Errorf("env step %q: missing required 'from' attribute", step.Name))
	}

	value, found := os.LookupEnv(from)
	if value == "" {
		if step.Attrs["required"] == "true" {
			return chain.Failed("ENV_MISSING", from),
				chain.Permanent(fmt.Errorf("env step %q: required environment variable %q is not set", step.Name, from))
		}
		value = step.Attrs["default"]
		found = false
	}

	pctx.Set(key, value)
	return chain.Succeeded(map[string]any{"from": from, "found": found}), nil
}
