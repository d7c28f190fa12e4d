package definition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

func TestEvalCondition(t *testing.T) {
	t.Parallel()
	vars := map[string]any{
		"status":         "ok",
		"count":          3,
		"validated":      true,
		"skipped":        false,
		"empty":          "",
		"upload.success": false,
		"ratio":          "0.75",
	}
	tests := []struct {
		cond string
		want bool
	}{
		{"status == 'ok'", true},
		{"status == \"fail\"", false},
		{"status != fail", true},
		{"validated", true},
		{"skipped", false},
		{"!skipped", true},
		{"empty", false},
		{"missing", false},
		{"count == 3", true},
		{"count > 2", true},
		{"count >= 3", true},
		{"count < 3", false},
		{"count <= 3.5", true},
		{"ratio < 1", true},
		{"status > 1", false},
		{"validated && upload.success == false", true},
		{"skipped || status == 'ok'", true},
		{"!(validated && skipped)", true},
		{"(status == 'ok' || skipped) && count != 4", true},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			got, err := definition.EvalCondition(tt.cond, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalCondition_ParseError(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"(unclosed", "a ==", "a && ", "a b", "", "a == 'open"} {
		_, err := definition.EvalCondition(expr, map[string]any{})
		assert.Error(t, err, expr)
	}
}

func TestCheckCondition(t *testing.T) {
	t.Parallel()
	assert.NoError(t, definition.CheckCondition("a == 1 && !b"))
	assert.Error(t, definition.CheckCondition("a ||"))
}
