package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// FailAction fails on purpose. With "times" set it fails only the first N
// invocations of an execution and succeeds afterwards; the running count is
// kept under "<step>.attempts". "permanent=true" marks the error
// non-retryable and "code" sets the failure result code.
type FailAction struct{}

func (a *FailAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	times := 0
	if v := step.Attrs["times"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("fail step %q: times %q must be a non-negative integer", step.Name, v)
		}
		times = n
	}

	countKey := step.Name + ".attempts"
	count, err := chain.AttrOr(pctx, countKey, 0)
	if err != nil {
		return nil, fmt.Errorf("fail step %q: %w", step.Name, err)
	}
	count++
	pctx.Set(countKey, count)

	if times > 0 && count > times {
		return chain.Succeeded(count), nil
	}

	msg := step.Attrs["message"]
	if msg == "" {
		msg = "step failed"
	}
	code := step.Attrs["code"]
	if code == "" {
		code = "FAILED"
	}
	err = fmt.Errorf("fail step %q: %s", step.Name, msg)
	if step.Attrs["permanent"] == "true" {
		err = chain.Permanent(err)
	}
	return chain.Failed(code, msg), err
}
