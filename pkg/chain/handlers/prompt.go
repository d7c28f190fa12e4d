package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
	"github.com/ravi-parthasarathy/handlerchain/pkg/llm"
)

const (
	defaultPromptMaxTokens = 1024
	defaultPromptModel     = "anthropic:claude-sonnet-4-6"
)

// PromptAction performs a single-turn LLM call and stores the text response
// under the step's "key" attribute. Provider errors that cannot succeed on a
// later attempt are marked permanent so retry policies skip them.
type PromptAction struct {
	DefaultModel string
	// NewClient overrides llm.NewClient, mainly for tests.
	NewClient func(modelID string) (llm.Client, error)
}

func (a *PromptAction) Run(ctx context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	promptTpl := step.Attrs["prompt"]
	if promptTpl == "" {
		return nil, chain.Permanent(fmt.Errorf("prompt step %q: missing 'prompt' attribute", step.Name))
	}
	key := step.Attrs["key"]
	if key == "" {
		return nil, chain.Permanent(fmt.Errorf("prompt step %q: missing 'key' attribute", step.Name))
	}

	rendered, err := renderTemplate(promptTpl, templateData(pctx))
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("prompt step %q: template error: %w", step.Name, err))
	}

	model := a.DefaultModel
	if m := step.Attrs["model"]; m != "" {
		model = m
	}
	if model == "" {
		model = defaultPromptModel
	}

	maxTokens := defaultPromptMaxTokens
	if mt := step.Attrs["max_tokens"]; mt != "" {
		if n, parseErr := strconv.Atoi(mt); parseErr == nil && n > 0 {
			maxTokens = n
		}
	}

	req := llm.GenerateRequest{
		Model:     model,
		Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, rendered)},
		MaxTokens: maxTokens,
		System:    step.Attrs["system"],
	}

	newClient := a.NewClient
	if newClient == nil {
		newClient = llm.NewClient
	}
	client, err := newClient(model)
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("prompt step %q: create LLM client: %w", step.Name, err))
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		err = fmt.Errorf("prompt step %q: LLM call: %w", step.Name, err)
		if !llm.Retryable(err) {
			err = chain.Permanent(err)
		}
		return nil, err
	}

	output := resp.Text()
	pctx.Set(key, output)
	pctx.Set("last_output", output)
	return chain.Succeeded(map[string]any{
		"model":         model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}), nil
}
