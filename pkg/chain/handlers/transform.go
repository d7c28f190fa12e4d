package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// sourceText reads a context value as text. Non-string values are formatted
// with fmt so numbers and booleans set by earlier steps can be transformed.
func sourceText(pctx *chain.Context, key string) string {
	v, ok := pctx.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// TransformAction applies a comma-separated list of string operations
// (trim, upper, lower, replace) to the "source" value and stores the result
// under "key". replace uses the templated "old" and "new" attributes.
type TransformAction struct{}

func (a *TransformAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	source, key := step.Attrs["source"], step.Attrs["key"]
	if source == "" || key == "" {
		return nil, chain.Permanent(fmt.Errorf("transform step %q: 'source' and 'key' are required", step.Name))
	}
	val := sourceText(pctx, source)
	data := templateData(pctx)

	for _, op := range strings.Split(step.Attrs["ops"], ",") {
		switch op = strings.TrimSpace(op); op {
		case "trim":
			val = strings.TrimSpace(val)
		case "upper":
			val = strings.ToUpper(val)
		case "lower":
			val = strings.ToLower(val)
		case "replace":
			oldStr, err := renderTemplate(step.Attrs["old"], data)
			if err != nil {
				return nil, chain.Permanent(fmt.Errorf("transform step %q: 'old' template: %w", step.Name, err))
			}
			newStr, err := renderTemplate(step.Attrs["new"], data)
			if err != nil {
				return nil, chain.Permanent(fmt.Errorf("transform step %q: 'new' template: %w", step.Name, err))
			}
			val = strings.ReplaceAll(val, oldStr, newStr)
		default:
			return nil, chain.Permanent(fmt.Errorf("transform step %q: unknown op %q (supported: trim, upper, lower, replace)", step.Name, op))
		}
	}

	pctx.Set(key, val)
	return chain.Succeeded(val), nil
}

// RegexAction matches "pattern" against the "source" value and stores the
// selected capture group (default 0, the whole match) under "key". Without
// a match "key" receives the "no_match" attribute and the result code is
// NO_MATCH, which still counts as success.
type RegexAction struct{}

func (a *RegexAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	source, key := step.Attrs["source"], step.Attrs["key"]
	if source == "" || key == "" {
		return nil, chain.Permanent(fmt.Errorf("regex step %q: 'source' and 'key' are required", step.Name))
	}
	re, err := regexp.Compile(step.Attrs["pattern"])
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("regex step %q: invalid pattern: %w", step.Name, err))
	}
	group := 0
	if g := step.Attrs["group"]; g != "" {
		n, err := strconv.Atoi(g)
		if err != nil || n < 0 {
			return nil, chain.Permanent(fmt.Errorf("regex step %q: group must be a non-negative integer, got %q", step.Name, g))
		}
		group = n
	}
	if group > re.NumSubexp() {
		return nil, chain.Permanent(fmt.Errorf("regex step %q: group %d out of range (pattern has %d groups)", step.Name, group, re.NumSubexp()))
	}

	matches := re.FindStringSubmatch(sourceText(pctx, source))
	if matches == nil {
		noMatch := step.Attrs["no_match"]
		pctx.Set(key, noMatch)
		res := chain.Succeeded(noMatch)
		res.Code = "NO_MATCH"
		return res, nil
	}
	pctx.Set(key, matches[group])
	return chain.Succeeded(matches[group]), nil
}
