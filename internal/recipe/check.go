package recipe

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/deps"
)

// Root variables of value expressions.
const (
	varOption    = "option"
	varDep       = "dep"
	varPrefix    = "prefix"
	varOptPrefix = "opt_prefix"
	varBuildPath = "buildpath"
	varName      = "name"
	varVersion   = "version"
)

var pathVars = map[string]bool{
	varPrefix:    true,
	varOptPrefix: true,
	varBuildPath: true,
	varName:      true,
	varVersion:   true,
}

var depAttrs = map[string]bool{
	"prefix":    true,
	"include":   true,
	"lib":       true,
	"bin":       true,
	"pkgconfig": true,
	"version":   true,
}

// checker validates every reference of a formula before anything runs.
type checker struct {
	f       *formula.Formula
	options map[string]bool
	deps    map[string]bool
}

func newChecker(f *formula.Formula) *checker {
	c := &checker{f: f, options: map[string]bool{}, deps: map[string]bool{}}
	for _, o := range f.Options {
		c.options[o.Name] = true
	}
	for _, d := range f.Dependencies {
		c.deps[d.Name] = true
	}
	return c
}

func (c *checker) check() error {
	f := c.f
	for _, d := range f.Dependencies {
		if _, err := deps.ParseConstraint(d.Version); err != nil {
			return &formula.ConfigError{Subject: "dependency " + d.Name, Err: err}
		}
		if err := c.condition(d.Condition); err != nil {
			return err
		}
	}
	for _, r := range f.Requirements {
		if err := c.condition(r.Condition); err != nil {
			return err
		}
	}
	for _, p := range f.Patches {
		if err := c.condition(p.Condition); err != nil {
			return err
		}
	}
	for _, e := range f.Edits {
		if err := c.all(e.Condition, e.Replacement, e.Append); err != nil {
			return err
		}
	}
	for _, e := range f.Env {
		if err := c.all(e.Condition, e.Value); err != nil {
			return err
		}
	}
	for _, s := range append(append([]formula.Step(nil), f.Steps...), f.Tests...) {
		if err := c.all(s.Condition, s.Command, s.Env); err != nil {
			return err
		}
	}
	for _, a := range f.Artifacts {
		if err := c.all(a.Condition, a.Source, a.Destination); err != nil {
			return err
		}
	}
	for _, p := range f.Placeholders {
		if err := c.all(p.Condition, p.Generator, p.Destination); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) all(cond formula.Condition, exprs ...hcl.Expression) error {
	if err := c.condition(cond); err != nil {
		return err
	}
	for _, e := range exprs {
		if err := c.value(e); err != nil {
			return err
		}
	}
	return nil
}

// condition accepts references to declared options only.
func (c *checker) condition(cond formula.Condition) error {
	if cond.Expr == nil {
		return nil
	}
	for _, tr := range cond.Expr.Variables() {
		if tr.RootName() != varOption {
			return formula.Errorf(tr.SourceRange().String(), "conditions may only refer to option values, not %q", tr.RootName())
		}
		if err := c.option(tr); err != nil {
			return err
		}
	}
	return c.functions(cond.Expr)
}

func (c *checker) value(expr hcl.Expression) error {
	if expr == nil {
		return nil
	}
	for _, tr := range expr.Variables() {
		root := tr.RootName()
		switch {
		case root == varOption:
			if err := c.option(tr); err != nil {
				return err
			}
		case root == varDep:
			if err := c.dep(tr); err != nil {
				return err
			}
		case pathVars[root]:
		default:
			return formula.Errorf(tr.SourceRange().String(), "unknown variable %q", root)
		}
	}
	return c.functions(expr)
}

func (c *checker) option(tr hcl.Traversal) error {
	name, ok := step(tr, 1)
	if !ok {
		return formula.Errorf(tr.SourceRange().String(), "option reference must name an option")
	}
	if !c.options[name] {
		return formula.Errorf(tr.SourceRange().String(), "unknown option %q", name)
	}
	return nil
}

func (c *checker) dep(tr hcl.Traversal) error {
	name, ok := step(tr, 1)
	if !ok {
		return formula.Errorf(tr.SourceRange().String(), "dependency reference must name a dependency")
	}
	if !c.deps[name] {
		return formula.Errorf(tr.SourceRange().String(), "undeclared dependency %q", name)
	}
	if len(tr) > 2 {
		attr, ok := step(tr, 2)
		if !ok || !depAttrs[attr] {
			return formula.Errorf(tr.SourceRange().String(), "dependency %s has no such attribute", name)
		}
	}
	return nil
}

// functions rejects calls to functions the evaluation context lacks.
func (c *checker) functions(expr hcl.Expression) error {
	node, ok := expr.(hclsyntax.Node)
	if !ok {
		return nil
	}
	diags := hclsyntax.VisitAll(node, func(n hclsyntax.Node) hcl.Diagnostics {
		call, ok := n.(*hclsyntax.FunctionCallExpr)
		if !ok {
			return nil
		}
		if _, known := functions[call.Name]; !known {
			return hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Call to unknown function",
				Detail:   fmt.Sprintf("There is no function named %q.", call.Name),
				Subject:  call.NameRange.Ptr(),
			}}
		}
		return nil
	})
	if diags.HasErrors() {
		return &formula.ConfigError{Subject: expr.Range().String(), Err: diags}
	}
	return nil
}

// step returns the attribute name at tr[i], accepting both a.b and a["b"].
func step(tr hcl.Traversal, i int) (string, bool) {
	if len(tr) <= i {
		return "", false
	}
	switch s := tr[i].(type) {
	case hcl.TraverseAttr:
		return s.Name, true
	case hcl.TraverseIndex:
		if s.Key.Type() == cty.String && s.Key.IsKnown() && !s.Key.IsNull() {
			return s.Key.AsString(), true
		}
	}
	return "", false
}
