package metrics_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/metrics"
)

func dump(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, metrics.WriteText(&sb, reg))
	return sb.String()
}

func TestMonitor_ObserveEvents(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMonitor(reg, "test")
	require.NoError(t, err)

	m.Observe(chain.Event{Type: chain.EventHandlerCompleted, Handler: "a", Elapsed: 20 * time.Millisecond})
	m.Observe(chain.Event{Type: chain.EventHandlerFailed, Handler: "b", Elapsed: time.Millisecond})
	m.Observe(chain.Event{Type: chain.EventHandlerRetrying, Handler: "b"})
	m.Observe(chain.Event{Type: chain.EventHandlerFailed, Handler: "b", Elapsed: time.Millisecond})
	m.Observe(chain.Event{Type: chain.EventHandlerSkipped, Handler: "c"})
	m.Observe(chain.Event{Type: chain.EventHandlerStarted, Handler: "a"})
	m.Observe(chain.Event{Type: chain.EventChainCompleted, Status: chain.StatusCompleted, Elapsed: time.Second})
	m.Observe(chain.Event{Type: chain.EventChainFailed, Status: chain.StatusFailed, Elapsed: time.Second})

	out := dump(t, reg)
	assert.Contains(t, out, `test_handler_failures_total{handler="b"} 2`)
	assert.Contains(t, out, `test_handler_retries_total{handler="b"} 1`)
	assert.Contains(t, out, `test_handler_skips_total{handler="c"} 1`)
	assert.Contains(t, out, `test_handler_duration_seconds_count{handler="a",outcome="success"} 1`)
	assert.Contains(t, out, `test_handler_duration_seconds_count{handler="b",outcome="failure"} 2`)
	assert.Contains(t, out, `test_executions_total{status="COMPLETED"} 1`)
	assert.Contains(t, out, `test_executions_total{status="FAILED"} 1`)
	assert.Contains(t, out, `test_execution_duration_seconds_count 2`)
	assert.Contains(t, out, "# HELP test_handler_failures_total")
}

func TestNewMonitor_DuplicateRegistration(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := metrics.NewMonitor(reg, "dup")
	require.NoError(t, err)
	_, err = metrics.NewMonitor(reg, "dup")
	require.Error(t, err)

	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestMonitor_FedByExecutor(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMonitor(reg, "chain")
	require.NoError(t, err)

	hreg := chain.NewRegistry(nil)
	require.NoError(t, hreg.RegisterAll(
		chain.Func("ok", func(context.Context, *chain.Context) (*chain.Result, error) {
			return chain.Succeeded(nil), nil
		}),
		chain.Func("bad", func(context.Context, *chain.Context) (*chain.Result, error) {
			return nil, errors.New("nope")
		}),
	))
	cfg := chain.DefaultConfig()
	cfg.Mode = chain.ContinuePipeline
	cfg.Retry = &chain.RetryPolicy{MaxAttempts: 2}
	exec, err := chain.NewExecutor(hreg, cfg, chain.WithEventHandler(m.Observe))
	require.NoError(t, err)
	require.NoError(t, exec.Execute(t.Context(), chain.NewContext()))

	out := dump(t, reg)
	assert.Contains(t, out, `chain_handler_failures_total{handler="bad"} 2`)
	assert.Contains(t, out, `chain_handler_retries_total{handler="bad"} 1`)
	assert.Contains(t, out, `chain_handler_duration_seconds_count{handler="ok",outcome="success"} 1`)
	assert.Contains(t, out, `chain_executions_total{status="COMPLETED"} 1`)
}
