package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// SetAction renders the step's "value" attribute as a Go template and stores
// it under "key". The optional "type" attribute (string, int, float, bool)
// converts the rendered text before storing, so typed reads see the right
// dynamic type.
type SetAction struct{}

func (a *SetAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	key := step.Attrs["key"]
	if key == "" {
		return nil, chain.Permanent(fmt.Errorf("set step %q: missing 'key' attribute", step.Name))
	}
	rendered, err := renderTemplate(step.Attrs["value"], templateData(pctx))
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("set step %q: template error: %w", step.Name, err))
	}
	val, err := convertValue(rendered, step.Attrs["type"])
	if err != nil {
		return nil, chain.Permanent(fmt.Errorf("set step %q: %w", step.Name, err))
	}
	pctx.Set(key, val)
	return chain.Succeeded(val), nil
}

func convertValue(s, typ string) (any, error) {
	switch typ {
	case "", "string":
		return s, nil
	case "int":
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an int", s)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a float", s)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a bool", s)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported value type %q", typ)
	}
}
