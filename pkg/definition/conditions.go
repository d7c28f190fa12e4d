package definition

import (
	"fmt"
	"strconv"
	"strings"
)

// EvalCondition evaluates a boolean expression against attribute values.
//
// Grammar:
//
//	<expr>  ::= <or>
//	<or>    ::= <and> ( "||" <and> )*
//	<and>   ::= <atom> ( "&&" <atom> )*
//	<atom>  ::= "!" <atom> | "(" <expr> ")" | <key> <op> <value> | <key>
//	<op>    ::= "==" | "!=" | "<" | "<=" | ">" | ">="
//	<key>   ::= letters, digits, "_", "." and "-"
//	<value> ::= single-quoted | double-quoted | bare word
//
// Equality compares string forms. Ordering operators compare numerically and
// are false when either side is not a number. A bare key is truthy unless it
// is missing, nil, false, empty, "false" or "0".
func EvalCondition(expr string, vars map[string]any) (bool, error) {
	p := &condParser{input: strings.TrimSpace(expr), vars: vars}
	result, err := p.parseOr()
	if err == nil {
		p.skipWS()
		if p.pos < len(p.input) {
			err = fmt.Errorf("unexpected %q at pos %d", p.input[p.pos:], p.pos)
		}
	}
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	return result, nil
}

// CheckCondition reports syntax errors in expr without any variables.
func CheckCondition(expr string) error {
	_, err := EvalCondition(expr, nil)
	return err
}

type condParser struct {
	input string
	pos   int
	vars  map[string]any
}

func (p *condParser) rest() string {
	if p.pos >= len(p.input) {
		return ""
	}
	return p.input[p.pos:]
}

func (p *condParser) skipWS() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *condParser) accept(tok string) bool {
	p.skipWS()
	if strings.HasPrefix(p.rest(), tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *condParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *condParser) parseAnd() (bool, error) {
	left, err := p.parseAtom()
	if err != nil {
		return false, err
	}
	for p.accept("&&") {
		right, err := p.parseAtom()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *condParser) parseAtom() (bool, error) {
	p.skipWS()
	if p.pos >= len(p.input) {
		return false, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '!' && !strings.HasPrefix(p.rest(), "!=") {
		p.pos++
		v, err := p.parseAtom()
		return !v, err
	}
	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if !p.accept(")") {
			return false, fmt.Errorf("expected ')' at pos %d", p.pos)
		}
		return v, nil
	}

	key := p.parseKey()
	if key == "" {
		return false, fmt.Errorf("expected identifier at pos %d", p.pos)
	}
	// Longer operators first so "<=" is not read as "<".
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if !p.accept(op) {
			continue
		}
		p.skipWS()
		want, ok := p.parseValue()
		if !ok {
			return false, fmt.Errorf("expected value after %q", op)
		}
		return compare(p.vars[key], op, want), nil
	}
	return truthy(p.vars[key]), nil
}

func (p *condParser) parseKey() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '_' || c == '.' || c == '-' {
			p.pos++
		} else {
			break
		}
	}
	return p.input[start:p.pos]
}

func (p *condParser) parseValue() (string, bool) {
	if p.pos >= len(p.input) {
		return "", false
	}
	quote := p.input[p.pos]
	if quote == '\'' || quote == '"' {
		p.pos++
		end := strings.IndexByte(p.input[p.pos:], quote)
		if end < 0 {
			return "", false
		}
		val := p.input[p.pos : p.pos+end]
		p.pos += end + 1
		return val, true
	}
	v := p.parseKey()
	return v, v != ""
}

func compare(got any, op, want string) bool {
	s := stringify(got)
	switch op {
	case "==":
		return s == want
	case "!=":
		return s != want
	}
	a, errA := strconv.ParseFloat(s, 64)
	b, errB := strconv.ParseFloat(want, 64)
	if errA != nil || errB != nil {
		return false
	}
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	switch stringify(v) {
	case "", "false", "0":
		return false
	}
	return true
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
