package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// JSONDecodeAction unpacks a JSON object held in "source" into individual
// context keys, each prefixed with the optional "prefix" attribute. Scalars
// keep their JSON type; nested objects and arrays are stored as compact JSON
// text. An empty source sets nothing.
type JSONDecodeAction struct{}

func (a *JSONDecodeAction) Run(_ context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error) {
	source := step.Attrs["source"]
	if source == "" {
		return nil, chain.Permanent(fmt.Errorf("json_decode step %q: missing 'source' attribute", step.Name))
	}
	prefix := step.Attrs["prefix"]

	raw := sourceText(pctx, source)
	if raw == "" {
		return chain.Succeeded([]string{}), nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return chain.Failed("INVALID_JSON", err.Error()),
			chain.Permanent(fmt.Errorf("json_decode step %q: value of %q is not a JSON object: %w", step.Name, source, err))
	}

	keys := slices.Sorted(maps.Keys(fields))
	for _, k := range keys {
		v := fields[k]
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("json_decode step %q: marshal field %q: %w", step.Name, k, err)
			}
			v = string(b)
		}
		pctx.Set(prefix+k, v)
	}
	return chain.Succeeded(keys), nil
}
