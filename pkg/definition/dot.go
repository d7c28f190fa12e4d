package definition

import (
	"fmt"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseDOT parses a Graphviz digraph into a Chain. Nodes are steps, the
// "kind" attribute selects their behaviour (default set) and an edge a -> b
// means a runs before b.
func ParseDOT(src string) (*Chain, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// gographviz.Graph rejects attribute names outside the Graphviz set, so
	// collect into our own permissive sink.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	c := newChain(collector.name)
	for k, v := range collector.graphAttrs {
		c.Attrs[k] = v
	}
	for _, name := range collector.order {
		attrs := collector.nodes[name]
		kind := Kind(attrs["kind"])
		if kind == "" {
			kind = KindSet
		}
		c.addStep(&Step{Name: name, Kind: kind, Attrs: attrs})
	}
	for _, e := range collector.edges {
		c.Links = append(c.Links, &Link{From: e.from, To: e.to})
	}
	if seq := strings.TrimSpace(c.Attrs["order"]); seq != "" {
		c.Sequence = splitList(seq)
	}
	return c, nil
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

type rawEdge struct {
	from, to string
}

// dotCollector implements gographviz.Interface without attribute validation
// and remembers node declaration order.
type dotCollector struct {
	name       string
	nodes      map[string]map[string]string
	order      []string
	edges      []rawEdge
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string, len(attrs))
		c.order = append(c.order, id)
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, _ bool, _ map[string]string) error {
	from, to := unquote(src), unquote(dst)
	// Edge endpoints declare steps implicitly, as in Graphviz.
	for _, id := range []string{from, to} {
		if _, ok := c.nodes[id]; !ok {
			if err := c.AddNode("", id, nil); err != nil {
				return err
			}
		}
	}
	c.edges = append(c.edges, rawEdge{from: from, to: to})
	return nil
}

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[field] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// ─── helpers ─────────────────────────────────────────────────────────────────

// unquote strips surrounding double-quotes from a DOT identifier or value.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
