package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// StepHandler runs a declared step through its kind's Action. Step
// attributes drive the optional handler capabilities:
//
//	order        execution order (lower first)
//	timeout      per-invocation deadline
//	retry_max    total attempts, overriding the executor policy
//	retry_delay  wait between attempts
//	when         condition; the step is skipped when it is false
//	recover      "true" absorbs failures and records <name>.recovered
type StepHandler struct {
	step    *definition.Step
	action  Action
	timeout time.Duration
	retry   *chain.RetryPolicy
	when    string
	recover bool
	logger  *slog.Logger
}

// NewStepHandler binds step to action, parsing its capability attributes.
func NewStepHandler(step *definition.Step, action Action) (*StepHandler, error) {
	h := &StepHandler{step: step, action: action, when: step.Attrs["when"], logger: slog.Default()}
	if v := step.Attrs["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("step %q: invalid timeout %q: %w", step.Name, v, err)
		}
		h.timeout = d
	}
	if v := step.Attrs["retry_max"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("step %q: retry_max %q must be a positive integer", step.Name, v)
		}
		h.retry = &chain.RetryPolicy{MaxAttempts: n}
		if d := step.Attrs["retry_delay"]; d != "" {
			delay, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("step %q: invalid retry_delay %q: %w", step.Name, d, err)
			}
			h.retry.Delay = delay
		}
	}
	if v := step.Attrs["recover"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("step %q: recover %q is not a boolean", step.Name, v)
		}
		h.recover = b
	}
	return h, nil
}

func (h *StepHandler) Name() string                    { return h.step.Name }
func (h *StepHandler) Order() int                      { return h.step.Order() }
func (h *StepHandler) Step() *definition.Step          { return h.step }
func (h *StepHandler) Timeout() time.Duration          { return h.timeout }
func (h *StepHandler) RetryPolicy() *chain.RetryPolicy { return h.retry }

func (h *StepHandler) Handle(ctx context.Context, pctx *chain.Context) (*chain.Result, error) {
	return h.action.Run(ctx, h.step, pctx)
}

func (h *StepHandler) HandleException(pctx *chain.Context, err error) bool {
	if !h.recover {
		return false
	}
	h.logger.Warn("step recovered from failure", "step", h.step.Name, "error", err)
	pctx.Set(h.step.Name+".recovered", true)
	pctx.Set(h.step.Name+".error", err.Error())
	return true
}

// Enabled evaluates the "when" condition. A condition that fails to parse
// disables the step.
func (h *StepHandler) Enabled(pctx *chain.Context) bool {
	if h.when == "" {
		return true
	}
	ok, err := definition.EvalCondition(h.when, templateData(pctx))
	if err != nil {
		h.logger.Warn("step condition invalid, skipping", "step", h.step.Name, "error", err)
		return false
	}
	return ok
}

// Build turns every step of c into a handler using the actions in cat. It
// returns the handlers in declaration order together with the chain's
// name-ordering list. The handlers log through cat's logger.
func Build(c *definition.Chain, cat *Catalog) ([]chain.Handler, []string, error) {
	order, err := c.Order()
	if err != nil {
		return nil, nil, err
	}
	var errs []error
	hs := make([]chain.Handler, 0, len(c.Declared))
	for _, name := range c.Declared {
		step := c.Steps[name]
		action, err := cat.Get(step.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("step %q: %w", name, err))
			continue
		}
		h, err := NewStepHandler(step, action)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h.logger = cat.Logger()
		hs = append(hs, h)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, fmt.Errorf("build chain %q: %w", c.Name, err)
	}
	return hs, order, nil
}
