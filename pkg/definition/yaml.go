package definition

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type yamlChain struct {
	Name  string            `yaml:"name"`
	Attrs map[string]string `yaml:"attrs"`
	Steps []yamlStep        `yaml:"steps"`
	Order []string          `yaml:"order"`
}

type yamlStep struct {
	Name  string            `yaml:"name"`
	Kind  Kind              `yaml:"kind"`
	Attrs map[string]string `yaml:"attrs"`
	// After lists steps that must run before this one.
	After []string `yaml:"after"`
}

// ParseYAML parses a YAML chain definition:
//
//	name: intake
//	steps:
//	  - name: validate
//	    kind: set
//	    attrs: {key: validated, value: "true", type: bool}
//	  - name: upload
//	    kind: fail
//	    after: [validate]
//	order: [validate, upload]
func ParseYAML(src []byte) (*Chain, error) {
	var doc yamlChain
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	c := newChain(doc.Name)
	for k, v := range doc.Attrs {
		c.Attrs[k] = v
	}
	for i, s := range doc.Steps {
		if s.Name == "" {
			return nil, fmt.Errorf("step %d: missing name", i+1)
		}
		if _, dup := c.Steps[s.Name]; dup {
			return nil, fmt.Errorf("step %q declared twice", s.Name)
		}
		kind := s.Kind
		if kind == "" {
			kind = KindSet
		}
		attrs := make(map[string]string, len(s.Attrs))
		for k, v := range s.Attrs {
			attrs[k] = v
		}
		c.addStep(&Step{Name: s.Name, Kind: kind, Attrs: attrs})
		for _, before := range s.After {
			c.Links = append(c.Links, &Link{From: before, To: s.Name})
		}
	}
	c.Sequence = doc.Order
	return c, nil
}
