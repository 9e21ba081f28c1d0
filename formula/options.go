package formula

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// -----------------------------------------------------------------------------

// OptionSet holds the resolved value of every option of a formula. It is
// immutable once created.
type OptionSet struct {
	values map[string]bool
}

// NewOptionSet resolves declared options against overrides. Every override
// must name a declared option.
func NewOptionSet(decl []Option, overrides map[string]bool) (*OptionSet, error) {
	values := make(map[string]bool, len(decl))
	for _, o := range decl {
		if _, dup := values[o.Name]; dup {
			return nil, Errorf("option "+o.Name, "declared more than once")
		}
		values[o.Name] = o.Default
	}
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		if _, ok := values[name]; !ok {
			return nil, Errorf("option "+name, "unknown option")
		}
		values[name] = overrides[name]
	}
	return &OptionSet{values: values}, nil
}

// Resolve returns the value of the named option.
func (s *OptionSet) Resolve(name string) (bool, error) {
	v, ok := s.values[name]
	if !ok {
		return false, Errorf("option "+name, "unknown option")
	}
	return v, nil
}

// Names returns the option names in alphabetical order.
func (s *OptionSet) Names() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Map returns a copy of the resolved values.
func (s *OptionSet) Map() map[string]bool {
	return maps.Clone(s.values)
}

// Value returns the options as a cty object, exposed to expressions as
// the "option" variable.
func (s *OptionSet) Value() cty.Value {
	if len(s.values) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(s.values))
	for k, v := range s.values {
		attrs[k] = cty.BoolVal(v)
	}
	return cty.ObjectVal(attrs)
}

// String returns a stable key of the resolved options. Names are sorted
// alphabetically and joined with "|", e.g. "docs-off|qt-on|test-on".
func (s *OptionSet) String() string {
	parts := make([]string, 0, len(s.values))
	for _, name := range s.Names() {
		state := "off"
		if s.values[name] {
			state = "on"
		}
		parts = append(parts, name+"-"+state)
	}
	return strings.Join(parts, "|")
}

// Allows evaluates c against the option values. The zero Condition, and a
// condition evaluating to null, always allow.
func (s *OptionSet) Allows(c Condition) (bool, error) {
	if c.Expr == nil {
		return true, nil
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"option": s.Value()},
	}
	v, diags := c.Expr.Value(ctx)
	if diags.HasErrors() {
		return false, &ConfigError{Subject: c.Expr.Range().String(), Err: diags}
	}
	if v.IsNull() {
		return true, nil
	}
	if !v.IsKnown() {
		return false, Errorf(c.Expr.Range().String(), "condition is not known")
	}
	v, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, &ConfigError{Subject: c.Expr.Range().String(), Err: fmt.Errorf("condition must be a bool: %w", err)}
	}
	return v.True(), nil
}

// -----------------------------------------------------------------------------

// Condition guards a declaration by option values.
type Condition struct {
	Expr hcl.Expression
}

// ParseCondition parses an HCL expression such as "option.qt && !option.docs".
func ParseCondition(src string) (Condition, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return Condition{}, &ConfigError{Subject: src, Err: diags}
	}
	return Condition{Expr: expr}, nil
}

// MustCondition is like ParseCondition but panics on error.
func MustCondition(src string) Condition {
	c, err := ParseCondition(src)
	if err != nil {
		panic(err)
	}
	return c
}

// -----------------------------------------------------------------------------

// ParseOverrides turns "--with"/"--without" style names into overrides.
// Names may carry their own "with-" or "without-" prefix, as in
// "without-qt", which takes precedence over the list they appear in.
func ParseOverrides(with, without []string) map[string]bool {
	out := make(map[string]bool, len(with)+len(without))
	set := func(name string, val bool) {
		switch {
		case strings.HasPrefix(name, "without-"):
			out[strings.TrimPrefix(name, "without-")] = false
		case strings.HasPrefix(name, "with-"):
			out[strings.TrimPrefix(name, "with-")] = true
		default:
			out[name] = val
		}
	}
	for _, name := range with {
		set(name, true)
	}
	for _, name := range without {
		set(name, false)
	}
	return out
}
