// Package definition loads declarative chain definitions from DOT or YAML
// files and validates them before they are turned into handlers.
package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind names the built-in behaviour a step runs.
type Kind string

const (
	KindSet       Kind = "set"
	KindAssert    Kind = "assert"
	KindEnv       Kind = "env"
	KindSleep     Kind = "sleep"
	KindBreak     Kind = "break"
	KindFail      Kind = "fail"
	KindPrompt    Kind = "prompt"
	KindTransform Kind = "transform"
	KindRegex     Kind = "regex"
	KindJSON      Kind = "json_decode"
	KindHTTP      Kind = "http"
)

// Step is one declared handler.
type Step struct {
	Name  string
	Kind  Kind
	Attrs map[string]string
}

// Order returns the step's "order" attribute, or 0 when absent or malformed.
// Validate reports malformed values.
func (s *Step) Order() int {
	n, err := strconv.Atoi(strings.TrimSpace(s.Attrs["order"]))
	if err != nil {
		return 0
	}
	return n
}

// Link declares that From runs before To.
type Link struct {
	From string
	To   string
}

// Chain is a parsed definition.
type Chain struct {
	Name  string
	Steps map[string]*Step
	// Declared lists step names in the order they appear in the source.
	Declared []string
	Links    []*Link
	// Sequence is an explicit name-ordering list; it overrides Links.
	Sequence []string
	Attrs    map[string]string
}

func newChain(name string) *Chain {
	return &Chain{
		Name:  name,
		Steps: make(map[string]*Step),
		Attrs: make(map[string]string),
	}
}

func (c *Chain) addStep(s *Step) {
	if _, ok := c.Steps[s.Name]; !ok {
		c.Declared = append(c.Declared, s.Name)
	}
	c.Steps[s.Name] = s
}

// Successors returns the targets of links leaving name, in definition order.
func (c *Chain) Successors(name string) []string {
	var out []string
	for _, l := range c.Links {
		if l.From == name {
			out = append(out, l.To)
		}
	}
	return out
}

// Order returns the name-ordering list for the registry: Sequence when
// given, otherwise a topological order of Links with ties broken by
// declaration order.
func (c *Chain) Order() ([]string, error) {
	if len(c.Sequence) > 0 {
		return append([]string(nil), c.Sequence...), nil
	}
	indegree := make(map[string]int, len(c.Steps))
	for _, name := range c.Declared {
		indegree[name] = 0
	}
	// Links with an unknown endpoint are ignored; Validate reports them.
	for _, l := range c.Links {
		_, fromOK := c.Steps[l.From]
		if _, toOK := c.Steps[l.To]; fromOK && toOK {
			indegree[l.To]++
		}
	}

	order := make([]string, 0, len(c.Declared))
	done := make(map[string]bool, len(c.Declared))
	for len(order) < len(c.Declared) {
		progressed := false
		for _, name := range c.Declared {
			if done[name] || indegree[name] > 0 {
				continue
			}
			done[name] = true
			order = append(order, name)
			for _, next := range c.Successors(name) {
				indegree[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for _, name := range c.Declared {
				if !done[name] {
					stuck = append(stuck, name)
				}
			}
			return nil, fmt.Errorf("chain %q: cycle among steps %s", c.Name, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

// Load reads a definition file, choosing the parser by extension.
func Load(path string) (*Chain, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var c *Chain
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".dot", ".gv":
		c, err = ParseDOT(string(src))
	case ".yaml", ".yml":
		c, err = ParseYAML(src)
	default:
		return nil, fmt.Errorf("definition %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}
