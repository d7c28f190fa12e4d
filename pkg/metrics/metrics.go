// Package metrics turns executor events into Prometheus metrics.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
)

// Outcome labels for handler_duration_seconds.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// DefaultBuckets covers sub-millisecond handlers up to minute-long LLM calls.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Monitor records per-handler and per-execution performance. Its Observe
// method is a chain.EventHandler.
type Monitor struct {
	handlerDuration   *prometheus.HistogramVec
	handlerFailures   *prometheus.CounterVec
	handlerRetries    *prometheus.CounterVec
	handlerSkips      *prometheus.CounterVec
	executions        *prometheus.CounterVec
	executionDuration prometheus.Histogram
}

// NewMonitor creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMonitor(reg prometheus.Registerer, namespace string) (*Monitor, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Monitor{
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Duration of individual handler invocations.",
			Buckets:   DefaultBuckets,
		}, []string{"handler", "outcome"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Handler invocations that returned an error.",
		}, []string{"handler"}),
		handlerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_retries_total",
			Help:      "Handler invocations scheduled for another attempt.",
		}, []string{"handler"}),
		handlerSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_skips_total",
			Help:      "Handlers skipped because they were disabled.",
		}, []string{"handler"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finished chain executions by final status.",
		}, []string{"status"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall time of finished chain executions.",
			Buckets:   DefaultBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{
		m.handlerDuration, m.handlerFailures, m.handlerRetries,
		m.handlerSkips, m.executions, m.executionDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Observe updates the metrics for one executor event.
func (m *Monitor) Observe(ev chain.Event) {
	switch ev.Type {
	case chain.EventHandlerCompleted:
		m.handlerDuration.WithLabelValues(ev.Handler, OutcomeSuccess).Observe(ev.Elapsed.Seconds())
	case chain.EventHandlerFailed:
		m.handlerDuration.WithLabelValues(ev.Handler, OutcomeFailure).Observe(ev.Elapsed.Seconds())
		m.handlerFailures.WithLabelValues(ev.Handler).Inc()
	case chain.EventHandlerRetrying:
		m.handlerRetries.WithLabelValues(ev.Handler).Inc()
	case chain.EventHandlerSkipped:
		m.handlerSkips.WithLabelValues(ev.Handler).Inc()
	case chain.EventChainCompleted, chain.EventChainFailed, chain.EventChainCancelled:
		m.executions.WithLabelValues(ev.Status.String()).Inc()
		m.executionDuration.Observe(ev.Elapsed.Seconds())
	}
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
