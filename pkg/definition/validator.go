package definition

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LintError describes a structural problem in a chain definition.
type LintError struct {
	Step    string
	Message string
}

func (e LintError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("step %q: %s", e.Step, e.Message)
	}
	return e.Message
}

// requiredAttrs lists the attributes each kind cannot run without.
var requiredAttrs = map[Kind][]string{
	KindSet:       {"key"},
	KindAssert:    {"expr"},
	KindEnv:       {"key", "from"},
	KindSleep:     {"duration"},
	KindPrompt:    {"prompt", "key"},
	KindTransform: {"source", "ops", "key"},
	KindRegex:     {"source", "pattern", "key"},
	KindJSON:      {"source"},
	KindHTTP:      {"url"},
}

// Validate checks a chain for structural correctness and returns every
// problem found, sorted by step name.
func Validate(c *Chain) []LintError {
	var errs []LintError
	if len(c.Steps) == 0 {
		errs = append(errs, LintError{Message: "chain has no steps"})
	}

	badLinks := false
	for _, l := range c.Links {
		if _, ok := c.Steps[l.From]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("link references unknown step %q", l.From)})
			badLinks = true
		}
		if _, ok := c.Steps[l.To]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("link references unknown step %q", l.To)})
			badLinks = true
		}
	}

	seen := make(map[string]bool, len(c.Sequence))
	for _, name := range c.Sequence {
		if _, ok := c.Steps[name]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("order lists unknown step %q", name)})
		}
		if seen[name] {
			errs = append(errs, LintError{Message: fmt.Sprintf("order lists step %q twice", name)})
		}
		seen[name] = true
	}
	// Order cannot be resolved meaningfully over dangling links.
	if len(c.Sequence) == 0 && !badLinks {
		if _, err := c.Order(); err != nil {
			errs = append(errs, LintError{Message: err.Error()})
		}
	}

	names := make([]string, 0, len(c.Steps))
	for name := range c.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, ValidateStep(c.Steps[name])...)
	}
	return errs
}

// ValidateStep checks a single step's attributes.
func ValidateStep(s *Step) []LintError {
	var errs []LintError
	bad := func(format string, args ...any) {
		errs = append(errs, LintError{Step: s.Name, Message: fmt.Sprintf(format, args...)})
	}

	for _, attr := range requiredAttrs[s.Kind] {
		if s.Attrs[attr] == "" {
			bad("missing required attribute %q for kind %q", attr, s.Kind)
		}
	}
	if v, ok := s.Attrs["order"]; ok {
		if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
			bad("order %q is not an integer", v)
		}
	}
	for _, attr := range []string{"timeout", "retry_delay", "duration"} {
		if v := s.Attrs[attr]; v != "" {
			if d, err := time.ParseDuration(v); err != nil || d < 0 {
				bad("%s %q is not a valid duration", attr, v)
			}
		}
	}
	if v := s.Attrs["retry_max"]; v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 {
			bad("retry_max %q must be a positive integer", v)
		}
	}
	for _, attr := range []string{"when", "expr"} {
		if v := s.Attrs[attr]; v != "" {
			if err := CheckCondition(v); err != nil {
				bad("%s: %v", attr, err)
			}
		}
	}
	if v := s.Attrs["pattern"]; v != "" && s.Kind == KindRegex {
		if _, err := regexp.Compile(v); err != nil {
			bad("invalid pattern: %v", err)
		}
	}
	if v := s.Attrs["type"]; v != "" && s.Kind == KindSet {
		switch v {
		case "string", "int", "float", "bool":
		default:
			bad("unsupported value type %q", v)
		}
	}
	return errs
}

// ValidateErr calls Validate and folds the problems into one error, or nil.
func ValidateErr(c *Chain) error {
	errs := Validate(c)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("chain validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
