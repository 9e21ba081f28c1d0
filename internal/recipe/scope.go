package recipe

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/keg"
)

var functions = map[string]function.Function{
	"compact":   stdlib.CompactFunc,
	"concat":    stdlib.ConcatFunc,
	"contains":  stdlib.ContainsFunc,
	"flatten":   stdlib.FlattenFunc,
	"format":    stdlib.FormatFunc,
	"join":      stdlib.JoinFunc,
	"lower":     stdlib.LowerFunc,
	"split":     stdlib.SplitFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
}

// Paths are the locations of one build.
type Paths struct {
	Prefix    string // installation prefix
	OptPrefix string // stable link to the prefix
	BuildPath string // working tree
}

// Scope evaluates the expressions of one formula for one invocation.
type Scope struct {
	vars map[string]cty.Value
	deps map[string]cty.Value
}

// NewScope returns a scope exposing opts and paths. Dependencies read as
// null until SetDep is called for them.
func NewScope(f *formula.Formula, opts *formula.OptionSet, paths Paths) *Scope {
	s := &Scope{
		vars: map[string]cty.Value{
			varOption:    opts.Value(),
			varPrefix:    cty.StringVal(paths.Prefix),
			varOptPrefix: cty.StringVal(paths.OptPrefix),
			varBuildPath: cty.StringVal(paths.BuildPath),
			varName:      cty.StringVal(f.Name),
			varVersion:   cty.StringVal(f.Version),
		},
		deps: make(map[string]cty.Value, len(f.Dependencies)),
	}
	for _, d := range f.Dependencies {
		s.deps[d.Name] = unresolved
	}
	return s
}

var unresolved = cty.ObjectVal(map[string]cty.Value{
	"prefix":    cty.NullVal(cty.String),
	"include":   cty.NullVal(cty.String),
	"lib":       cty.NullVal(cty.String),
	"bin":       cty.NullVal(cty.String),
	"pkgconfig": cty.NullVal(cty.String),
	"version":   cty.NullVal(cty.String),
})

// SetDep exposes k as dep.<name>.
func (s *Scope) SetDep(name string, k *keg.Keg) {
	s.deps[name] = cty.ObjectVal(map[string]cty.Value{
		"prefix":    cty.StringVal(k.Prefix),
		"include":   cty.StringVal(k.Include()),
		"lib":       cty.StringVal(k.Lib()),
		"bin":       cty.StringVal(k.Bin()),
		"pkgconfig": cty.StringVal(k.PkgConfig()),
		"version":   cty.StringVal(k.Version),
	})
}

// EvalContext returns a fresh evaluation context.
func (s *Scope) EvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(s.vars)+1)
	for k, v := range s.vars {
		vars[k] = v
	}
	if len(s.deps) == 0 {
		vars[varDep] = cty.EmptyObjectVal
	} else {
		vars[varDep] = cty.ObjectVal(s.deps)
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}
}

func (s *Scope) eval(expr hcl.Expression, ty cty.Type) (cty.Value, error) {
	v, diags := expr.Value(s.EvalContext())
	if diags.HasErrors() {
		return cty.NilVal, &formula.ConfigError{Subject: expr.Range().String(), Err: diags}
	}
	if v.IsNull() {
		return v, nil
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, formula.Errorf(expr.Range().String(), "value is not known")
	}
	v, err := convert.Convert(v, ty)
	if err != nil {
		return cty.NilVal, &formula.ConfigError{Subject: expr.Range().String(), Err: err}
	}
	return v, nil
}

// String evaluates expr as a string. A nil expression or a null value
// yields "".
func (s *Scope) String(expr hcl.Expression) (string, error) {
	if expr == nil {
		return "", nil
	}
	v, err := s.eval(expr, cty.String)
	if err != nil || v.IsNull() {
		return "", err
	}
	return v.AsString(), nil
}

// Strings evaluates expr as a list of strings.
func (s *Scope) Strings(expr hcl.Expression) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	v, err := s.eval(expr, cty.List(cty.String))
	if err != nil || v.IsNull() {
		return nil, err
	}
	var out []string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return nil, &formula.ConfigError{Subject: expr.Range().String(), Err: fmt.Errorf("list of strings: %w", err)}
	}
	return out, nil
}

// StringMap evaluates expr as a map of strings.
func (s *Scope) StringMap(expr hcl.Expression) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	v, err := s.eval(expr, cty.Map(cty.String))
	if err != nil || v.IsNull() {
		return nil, err
	}
	var out map[string]string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return nil, &formula.ConfigError{Subject: expr.Range().String(), Err: fmt.Errorf("map of strings: %w", err)}
	}
	return out, nil
}
