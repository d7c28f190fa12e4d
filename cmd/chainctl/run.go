package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/chain/handlers"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
	"github.com/ravi-parthasarathy/handlerchain/pkg/journal"
	"github.com/ravi-parthasarathy/handlerchain/pkg/metrics"
)

type runOptions struct {
	chainFile   string
	configFile  string
	sets        []string
	outputPath  string
	journalPath string
	metrics     bool
	model       string
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <chain.(dot|yaml)>",
		Short: "Execute a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.chainFile = args[0]
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runChain(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "executor configuration YAML (optional)")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "initial context attribute as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.outputPath, "output", "", "path to write the final context as JSON (optional)")
	cmd.Flags().StringVar(&opts.journalPath, "journal", "", "path of the execution journal to append to (optional)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics after the run")
	cmd.Flags().StringVar(&opts.model, "model", defaultModel, "default LLM model for prompt steps (provider:model-id)")
	return cmd
}

func runChain(ctx context.Context, w io.Writer, opts runOptions) error {
	c, cfg, reg, err := prepare(opts.chainFile, opts.configFile, opts.model)
	if err != nil {
		return err
	}
	attrs, err := parseSets(opts.sets)
	if err != nil {
		return err
	}
	pctx := chain.NewContextFrom(attrs)

	track := newOutcomeTracker()
	sinks := []chain.EventHandler{track.observe}

	var promReg *prometheus.Registry
	if opts.metrics {
		if cfg.EnablePerformanceMonitoring {
			promReg = prometheus.NewRegistry()
			mon, err := metrics.NewMonitor(promReg, "handlerchain")
			if err != nil {
				return err
			}
			sinks = append(sinks, mon.Observe)
		} else {
			slog.Warn("--metrics ignored: enable_performance_monitoring is off")
		}
	}

	var recorder *journal.Recorder
	if opts.journalPath != "" {
		store, err := journal.Open(opts.journalPath)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = journal.NewRecorder(store, c.Name, slog.Default())
		sinks = append(sinks, recorder.Observe)
	}

	exec, err := chain.NewExecutor(reg, cfg,
		chain.WithLogger(slog.Default()),
		chain.WithEventHandler(chain.MultiEventHandler(sinks...)),
	)
	if err != nil {
		return err
	}

	runErr := exec.Execute(ctx, pctx)
	printSummary(w, c.Name, exec, reg, pctx, track)

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := writeOutputContext(opts.outputPath, pctx); err != nil {
		errs = append(errs, err)
	}
	if recorder != nil {
		if err := recorder.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if promReg != nil {
		fmt.Fprintln(w)
		if err := metrics.WriteText(w, promReg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// prepare loads and validates the chain, loads the executor config and
// builds the registry: definition order first, then the config's order.
func prepare(chainFile, configFile, model string) (*definition.Chain, chain.Config, *chain.Registry, error) {
	c, err := definition.Load(chainFile)
	if err != nil {
		return nil, chain.Config{}, nil, err
	}
	if err := definition.ValidateErr(c); err != nil {
		return nil, chain.Config{}, nil, fmt.Errorf("invalid chain: %w", err)
	}

	cfg := chain.DefaultConfig()
	if configFile != "" {
		if cfg, err = chain.LoadConfig(configFile); err != nil {
			return nil, chain.Config{}, nil, err
		}
	}

	logger := slog.Default().With("chain", c.Name)
	cat := handlers.DefaultCatalog(model)
	cat.SetLogger(logger)
	hs, order, err := handlers.Build(c, cat)
	if err != nil {
		return nil, chain.Config{}, nil, err
	}
	reg := chain.NewRegistry(logger)
	if err := reg.RegisterAll(hs...); err != nil {
		return nil, chain.Config{}, nil, err
	}
	reg.Reorder(order)
	if len(cfg.Order) > 0 {
		reg.Reorder(cfg.Order)
	}
	return c, cfg, reg, nil
}

// parseSets turns repeated key=value flags into context attributes.
func parseSets(sets []string) (map[string]any, error) {
	attrs := make(map[string]any, len(sets))
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		attrs[k] = v
	}
	return attrs, nil
}

// writeOutputContext writes the context attributes as JSON. An empty path
// is a no-op.
func writeOutputContext(path string, pctx *chain.Context) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(pctx.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output context: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output context: %w", err)
	}
	return nil
}

// ─── summary ──────────────────────────────────────────────────────────────────

// outcomeTracker remembers the last outcome of each handler so the summary
// can tell skipped handlers from ones that never ran.
type outcomeTracker struct {
	mu       sync.Mutex
	outcome  map[string]string
	attempts map[string]int
	errs     map[string]string
}

func newOutcomeTracker() *outcomeTracker {
	return &outcomeTracker{
		outcome:  make(map[string]string),
		attempts: make(map[string]int),
		errs:     make(map[string]string),
	}
}

func (t *outcomeTracker) observe(ev chain.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Type {
	case chain.EventHandlerStarted:
		t.attempts[ev.Handler] = ev.Attempt
	case chain.EventHandlerCompleted:
		t.outcome[ev.Handler] = "ok"
		delete(t.errs, ev.Handler)
	case chain.EventHandlerFailed:
		t.outcome[ev.Handler] = "FAILED"
		if ev.Err != nil {
			t.errs[ev.Handler] = ev.Err.Error()
		}
	case chain.EventHandlerSkipped:
		t.outcome[ev.Handler] = "skipped"
	}
}

func printSummary(w io.Writer, name string, exec *chain.Executor, reg *chain.Registry, pctx *chain.Context, t *outcomeTracker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(w, "Chain: %s  status=%s  execution=%s", name, exec.Status(), pctx.ExecutionID())
	if d := exec.LastExecutionTime(); d > 0 {
		fmt.Fprintf(w, "  elapsed=%s", d.Round(time.Microsecond))
	}
	fmt.Fprintln(w)

	ordered := reg.Ordered()
	maxName := 4
	for _, h := range ordered {
		maxName = max(maxName, len(h.Name()))
	}
	for _, h := range ordered {
		n := h.Name()
		outcome, ok := t.outcome[n]
		if !ok {
			outcome = "-"
		}
		line := fmt.Sprintf("  %-*s  %-7s", maxName, n, outcome)
		if a := t.attempts[n]; a > 1 {
			line += fmt.Sprintf("  attempts=%d", a)
		}
		if r, ok := pctx.Result(n); ok {
			if r.Code != "" {
				line += "  code=" + r.Code
			}
			if r.Elapsed > 0 {
				line += "  " + r.Elapsed.Round(time.Microsecond).String()
			}
		}
		if msg, ok := t.errs[n]; ok {
			line += "  " + truncate(msg, 80)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	if err := pctx.Err(); err != nil {
		fmt.Fprintf(w, "last error: %v\n", err)
	}
}
