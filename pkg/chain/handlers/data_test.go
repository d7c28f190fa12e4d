package handlers_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/chain/handlers"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// ─── transform ────────────────────────────────────────────────────────────────

func TestTransformAction(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContextFrom(map[string]any{"raw": "  Hello, NAME  ", "who": "world"})
	s := step("clean", definition.KindTransform, map[string]string{
		"source": "raw", "key": "out", "ops": "trim, lower, replace",
		"old": "name", "new": "{{.who}}",
	})

	res, err := (&handlers.TransformAction{}).Run(t.Context(), s, pctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello, world", pctx.GetString("out"))
}

func TestTransformAction_NonStringSource(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContextFrom(map[string]any{"n": 42})
	_, err := (&handlers.TransformAction{}).Run(t.Context(),
		step("t", definition.KindTransform, map[string]string{"source": "n", "key": "s", "ops": "trim"}), pctx)
	require.NoError(t, err)
	assert.Equal(t, "42", pctx.GetString("s"))
}

func TestTransformAction_UnknownOp(t *testing.T) {
	t.Parallel()
	_, err := (&handlers.TransformAction{}).Run(t.Context(),
		step("t", definition.KindTransform, map[string]string{"source": "a", "key": "b", "ops": "reverse"}),
		chain.NewContext())
	require.Error(t, err)
	assert.True(t, chain.IsPermanent(err))
}

// ─── regex ────────────────────────────────────────────────────────────────────

func TestRegexAction(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContextFrom(map[string]any{"line": "order #1234 shipped"})

	res, err := (&handlers.RegexAction{}).Run(t.Context(),
		step("id", definition.KindRegex, map[string]string{
			"source": "line", "pattern": `#(\d+)`, "group": "1", "key": "order_id",
		}), pctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "1234", pctx.GetString("order_id"))

	res, err = (&handlers.RegexAction{}).Run(t.Context(),
		step("id", definition.KindRegex, map[string]string{
			"source": "line", "pattern": `refund`, "key": "refund", "no_match": "none",
		}), pctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "NO_MATCH", res.Code)
	assert.Equal(t, "none", pctx.GetString("refund"))
}

func TestRegexAction_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		attrs map[string]string
	}{
		{"bad pattern", map[string]string{"source": "a", "key": "b", "pattern": "("}},
		{"negative group", map[string]string{"source": "a", "key": "b", "pattern": "x", "group": "-1"}},
		{"group out of range", map[string]string{"source": "a", "key": "b", "pattern": "(x)", "group": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&handlers.RegexAction{}).Run(t.Context(), step("r", definition.KindRegex, tt.attrs), chain.NewContext())
			require.Error(t, err)
			assert.True(t, chain.IsPermanent(err))
		})
	}
}

// ─── json_decode ──────────────────────────────────────────────────────────────

func TestJSONDecodeAction(t *testing.T) {
	t.Parallel()
	pctx := chain.NewContextFrom(map[string]any{
		"payload": `{"name": "widget", "count": 3, "ok": true, "tags": ["a", "b"]}`,
	})

	res, err := (&handlers.JSONDecodeAction{}).Run(t.Context(),
		step("decode", definition.KindJSON, map[string]string{"source": "payload", "prefix": "item_"}), pctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "name", "ok", "tags"}, res.Data)

	assert.Equal(t, "widget", pctx.GetString("item_name"))
	assert.Equal(t, `["a","b"]`, pctx.GetString("item_tags"))
	n, ok, err := chain.Attr[float64](pctx, "item_count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 3.0, n, 0)
	b, ok, err := chain.Attr[bool](pctx, "item_ok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, b)
}

func TestJSONDecodeAction_EmptyAndInvalid(t *testing.T) {
	t.Parallel()
	a := &handlers.JSONDecodeAction{}

	res, err := a.Run(t.Context(), step("d", definition.KindJSON, map[string]string{"source": "missing"}), chain.NewContext())
	require.NoError(t, err)
	assert.True(t, res.Success)

	pctx := chain.NewContextFrom(map[string]any{"payload": `[1, 2]`})
	res, err = a.Run(t.Context(), step("d", definition.KindJSON, map[string]string{"source": "payload"}), pctx)
	require.Error(t, err)
	assert.True(t, chain.IsPermanent(err))
	assert.Equal(t, "INVALID_JSON", res.Code)
}

// ─── http ─────────────────────────────────────────────────────────────────────

func TestHTTPAction(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/7", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"qty": 2}`, string(b))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": 7}`)
	}))
	t.Cleanup(srv.Close)

	pctx := chain.NewContextFrom(map[string]any{"base": srv.URL, "id": 7, "token": "secret"})
	s := step("create", definition.KindHTTP, map[string]string{
		"url":     "{{.base}}/orders/{{.id}}",
		"method":  "post",
		"body":    `{"qty": 2}`,
		"headers": "X-Token: {{.token}}; Accept: application/json",
	})

	res, err := (&handlers.HTTPAction{Client: srv.Client()}).Run(t.Context(), s, pctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, `{"id": 7}`, pctx.GetString("create_body"))
	status, ok, err := chain.Attr[int](pctx, "create_status")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, status)
}

func TestHTTPAction_StatusClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusNotFound, true},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			res, err := (&handlers.HTTPAction{}).Run(t.Context(),
				step("call", definition.KindHTTP, map[string]string{"url": srv.URL, "fail_non2xx": "true"}),
				chain.NewContext())
			require.Error(t, err)
			assert.Equal(t, tt.permanent, chain.IsPermanent(err))
			assert.Equal(t, "HTTP_STATUS", res.Code)
		})
	}
}

func TestHTTPAction_Non2xxWithoutFailFlag(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	pctx := chain.NewContext()
	res, err := (&handlers.HTTPAction{}).Run(t.Context(),
		step("call", definition.KindHTTP, map[string]string{"url": srv.URL, "status_key": "code"}), pctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	code, _, _ := chain.Attr[int](pctx, "code")
	assert.Equal(t, http.StatusTeapot, code)
}

func TestHTTPAction_RequestDeadline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	a := &handlers.HTTPAction{Timeout: 20 * time.Millisecond}
	start := time.Now()
	res, err := a.Run(t.Context(), step("hang", definition.KindHTTP, map[string]string{"url": srv.URL}), chain.NewContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, chain.IsPermanent(err))
	assert.Equal(t, "HTTP_TRANSPORT", res.Code)
	assert.Less(t, time.Since(start), 2*time.Second)
}
