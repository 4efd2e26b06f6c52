// Package condition filters results with expressions like
// `seeders>10 AND name|1080p OR status=open`.
//
// Fields are looked up on the JSON encoding of a result, nested fields are
// separated by dots. A field holding a list matches when any element does.
// AND binds tighter than OR.
package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpContains     Operator = "|"
)

type Term struct {
	Field string
	Op    Operator
	Value string
}

// Condition is a disjunction of conjunctions of terms.
type Condition struct {
	source string
	or     [][]Term
}

func (c *Condition) String() string {
	return c.source
}

var (
	orSplit  = regexp.MustCompile(`\s+OR\s+`)
	andSplit = regexp.MustCompile(`\s+AND\s+`)
)

func Parse(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty condition")
	}

	c := &Condition{source: expr}
	for _, group := range orSplit.Split(expr, -1) {
		var terms []Term
		for _, raw := range andSplit.Split(group, -1) {
			term, err := parseTerm(raw)
			if err != nil {
				return nil, err
			}
			terms = append(terms, term)
		}
		c.or = append(c.or, terms)
	}
	return c, nil
}

func parseTerm(raw string) (Term, error) {
	raw = strings.TrimSpace(raw)
	i := strings.IndexAny(raw, "=!<>|")
	if i <= 0 {
		return Term{}, fmt.Errorf("invalid condition %q: expected <field><operator><value>", raw)
	}

	op := Operator(raw[i : i+1])
	if i+1 < len(raw) && raw[i+1] == '=' && (op == "!" || op == "<" || op == ">") {
		op = Operator(raw[i : i+2])
	}
	if op == "!" {
		return Term{}, fmt.Errorf("invalid condition %q: unknown operator", raw)
	}

	value := strings.TrimSpace(raw[i+len(op):])
	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
		value = value[1 : len(value)-1]
	}
	return Term{
		Field: strings.TrimSpace(raw[:i]),
		Op:    op,
		Value: value,
	}, nil
}

// Match evaluates the condition on obj. An object missing a field does not
// match terms on that field.
func (c *Condition) Match(obj any) (bool, error) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return false, fmt.Errorf("encode %T: %w", obj, err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var doc any
	err = dec.Decode(&doc)
	if err != nil {
		return false, err
	}

	for _, terms := range c.or {
		all := true
		for _, term := range terms {
			if !term.match(doc) {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

// lookup returns every value at path, walking into lists along the way.
func lookup(doc any, path []string) []any {
	if len(path) == 0 {
		if list, ok := doc.([]any); ok {
			return list
		}
		return []any{doc}
	}
	switch v := doc.(type) {
	case map[string]any:
		next, ok := v[path[0]]
		if !ok {
			return nil
		}
		return lookup(next, path[1:])
	case []any:
		var out []any
		for _, elem := range v {
			out = append(out, lookup(elem, path)...)
		}
		return out
	}
	return nil
}

func (t Term) match(doc any) bool {
	for _, value := range lookup(doc, strings.Split(t.Field, ".")) {
		if t.compare(value) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	}
}

// compareValues returns -1, 0 or 1. Numbers compare numerically, RFC3339 timestamps
// chronologically and everything else as lowercase strings.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}

	ta, errA := time.Parse(time.RFC3339, a)
	if errA == nil {
		tb, errB := parseTime(b)
		if errB == nil {
			return ta.Compare(tb)
		}
	}

	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// parseTime accepts a full timestamp or a date on the right hand side.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func (t Term) compare(v any) bool {
	actual := stringify(v)
	switch t.Op {
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(t.Value))
	case OpEqual:
		return compareValues(actual, t.Value) == 0
	case OpNotEqual:
		return compareValues(actual, t.Value) != 0
	case OpLess:
		return compareValues(actual, t.Value) < 0
	case OpLessEqual:
		return compareValues(actual, t.Value) <= 0
	case OpGreater:
		return compareValues(actual, t.Value) > 0
	case OpGreaterEqual:
		return compareValues(actual, t.Value) >= 0
	}
	return false
}
