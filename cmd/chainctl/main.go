package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain/handlers"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"

	// Register all LLM providers via their init() functions.
	_ "github.com/ravi-parthasarathy/handlerchain/pkg/llm/providers"
)

const defaultModel = "anthropic:claude-sonnet-4-6"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "chainctl",
		Short: "chainctl runs handler chains",
		Long: `chainctl executes chains of handlers declared in DOT or YAML files.

Each step is a typed handler (set, assert, env, sleep, break, fail, prompt)
run in order against a shared context. Failures are settled by the
configured exception handling mode: break stops the chain, continue
carries on with the next handler.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(runCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(historyCmd())
	return root
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <chain.(dot|yaml)>",
		Short: "Validate a chain definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := definition.Load(args[0])
			if err != nil {
				return err
			}
			if lintErr := definition.ValidateErr(c); lintErr != nil {
				return lintErr
			}
			if _, _, err := handlers.Build(c, handlers.DefaultCatalog(defaultModel)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: chain %q is valid (%d steps, %d links)\n",
				c.Name, len(c.Steps), len(c.Links))
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// initLogger installs the default slog logger writing to stderr.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			slog.Warn("interrupted, cancelling chain", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
