package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

func graphCmd() *cobra.Command {
	var format, configFile string

	cmd := &cobra.Command{
		Use:   "graph <chain.(dot|yaml)>",
		Short: "Print the resolved execution order of a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, reg, err := prepare(args[0], configFile, defaultModel)
			if err != nil {
				return err
			}
			order := executionOrder(reg)

			switch strings.ToLower(format) {
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), renderDOT(c, order))
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(c, order))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	cmd.Flags().StringVar(&configFile, "config", "", "executor configuration YAML whose order list applies (optional)")
	return cmd
}

func executionOrder(reg *chain.Registry) []string {
	hs := reg.Ordered()
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.Name()
	}
	return names
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

func sortedAttrKeys(s *definition.Step) []string {
	keys := make([]string, 0, len(s.Attrs))
	for k := range s.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderText produces the human-readable execution plan.
func renderText(c *definition.Chain, order []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chain: %s  (%d steps, %d links)\n", c.Name, len(c.Steps), len(c.Links))

	maxName := 4
	for name := range c.Steps {
		maxName = max(maxName, len(name))
	}

	fmt.Fprintf(&sb, "\nExecution order:\n")
	for i, name := range order {
		s := c.Steps[name]
		var parts []string
		for _, k := range sortedAttrKeys(s) {
			parts = append(parts, k+"="+truncate(s.Attrs[k], 60))
		}
		line := fmt.Sprintf("  %2d. %-*s  %-7s  %s", i+1, maxName, name, string(s.Kind), strings.Join(parts, " "))
		fmt.Fprintln(&sb, strings.TrimRight(line, " "))
	}

	if len(c.Links) > 0 {
		fmt.Fprintf(&sb, "\nLinks:\n")
		maxFrom := 4
		for _, l := range c.Links {
			maxFrom = max(maxFrom, len(l.From))
		}
		for _, l := range c.Links {
			fmt.Fprintf(&sb, "  %-*s  →  %s\n", maxFrom, l.From, l.To)
		}
	}
	return sb.String()
}

// dotQuote returns the value as a DOT-safe string, quoting if necessary.
func dotQuote(s string) string {
	needsQuote := s == "" ||
		strings.ContainsAny(s, " \t\n\\\"{}[]<>=;,.-:") ||
		(s[0] >= '0' && s[0] <= '9')
	if needsQuote {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return s
}

// renderDOT produces a DOT digraph listing steps in execution order, with
// that order also recorded as the graph's order attribute.
func renderDOT(c *definition.Chain, order []string) string {
	var sb strings.Builder

	name := c.Name
	if name == "" {
		name = "chain"
	}
	fmt.Fprintf(&sb, "digraph %s {\n", dotQuote(name))
	fmt.Fprintf(&sb, "    graph [order=%s]\n", dotQuote(strings.Join(order, ",")))

	for _, id := range order {
		s := c.Steps[id]
		parts := []string{"kind=" + dotQuote(string(s.Kind))}
		for _, k := range sortedAttrKeys(s) {
			parts = append(parts, k+"="+dotQuote(s.Attrs[k]))
		}
		fmt.Fprintf(&sb, "    %s [%s]\n", dotQuote(id), strings.Join(parts, " "))
	}
	for _, l := range c.Links {
		fmt.Fprintf(&sb, "    %s -> %s\n", dotQuote(l.From), dotQuote(l.To))
	}

	fmt.Fprintf(&sb, "}\n")
	return sb.String()
}
