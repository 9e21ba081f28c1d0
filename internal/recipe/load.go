// Copyright 2024 The brewer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recipe reads formulas written in HCL.
//
// A formula file holds one formula block and any number of declarations:
//
//	formula "octave-head" {
//	  version = "HEAD"
//	}
//
//	option "qt" {
//	  description = "Compile with the Qt GUI"
//	  default     = true
//	}
//
//	depends_on "qt" {
//	  condition = option.qt
//	}
//
//	step "configure" {
//	  command = ["./configure", "--prefix=${prefix}"]
//	}
//
// Conditions may only read option values. Other expressions may also read
// the installed dependencies (dep.NAME.prefix, .include, .lib, .bin,
// .pkgconfig, .version) and the paths of the build (prefix, opt_prefix,
// buildpath, name, version). Every reference is checked when the file is
// loaded.
package recipe

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/ctxlog"
)

// Load reads the formula at path.
func Load(ctx context.Context, path string) (*formula.Formula, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, src, abs)
}

// Parse reads a formula from src. Relative patch files are resolved
// against the directory of filename.
func Parse(ctx context.Context, src []byte, filename string) (*formula.Formula, error) {
	logger := ctxlog.FromContext(ctx)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, &formula.ConfigError{Subject: filename, Err: diags}
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, &formula.ConfigError{Subject: filename, Err: diags}
	}
	if root.Formula == nil {
		return nil, formula.Errorf(filename, "missing formula block")
	}

	f := &formula.Formula{
		Name:     root.Formula.Name,
		Desc:     root.Formula.Desc,
		Homepage: root.Formula.Homepage,
		Version:  root.Formula.Version,
		Dir:      filepath.Dir(filename),
	}
	if h := root.Formula.Head; h != nil {
		f.Head = &formula.Source{URL: h.URL, Ref: h.Branch}
	}
	t := &translator{f: f}
	if err := t.translate(&root); err != nil {
		return nil, err
	}
	if err := newChecker(f).check(); err != nil {
		return nil, err
	}

	logger.Debug("Loaded formula", "formula", f.Name, "file", filename,
		"options", len(f.Options), "dependencies", len(f.Dependencies),
		"patches", len(f.Patches), "steps", len(f.Steps))
	return f, nil
}

type translator struct {
	f *formula.Formula
}

func (t *translator) translate(root *fileRoot) error {
	f := t.f
	for _, o := range root.Options {
		if _, dup := f.Option(o.Name); dup {
			return formula.Errorf("option "+o.Name, "declared more than once")
		}
		f.Options = append(f.Options, formula.Option{Name: o.Name, Description: o.Description, Default: o.Default})
	}
	for _, d := range root.Dependencies {
		dep, err := t.dependency(d)
		if err != nil {
			return err
		}
		f.Dependencies = append(f.Dependencies, dep)
	}
	for _, r := range root.Requirements {
		f.Requirements = append(f.Requirements, formula.Requirement{
			Name:       r.Name,
			Executable: r.Executable,
			Message:    r.Message,
			Condition:  formula.Condition{Expr: present(r.Condition)},
		})
	}
	for _, c := range root.Conflicts {
		f.Conflicts = append(f.Conflicts, formula.Conflict{Name: c.Name, Because: c.Because})
	}
	for _, p := range root.Patches {
		patch, err := t.patch(p)
		if err != nil {
			return err
		}
		f.Patches = append(f.Patches, patch)
	}
	for _, e := range root.Edits {
		edit := formula.Edit{
			File:        e.File,
			Pattern:     e.Pattern,
			Regex:       e.Regex,
			Replacement: present(e.Replacement),
			Append:      present(e.Append),
			Condition:   formula.Condition{Expr: present(e.Condition)},
		}
		switch {
		case edit.Pattern == "" && edit.Append == nil:
			return formula.Errorf(e.DefRange.String(), "inreplace %s needs a pattern or lines to append", e.File)
		case edit.Pattern != "" && edit.Replacement == nil:
			return formula.Errorf(e.DefRange.String(), "inreplace %s has a pattern but no replacement", e.File)
		}
		f.Edits = append(f.Edits, edit)
	}
	for _, e := range root.Env {
		mode, err := formula.ParseEnvMode(e.Mode)
		if err != nil {
			return &formula.ConfigError{Subject: "env " + e.Name, Err: err}
		}
		f.Env = append(f.Env, formula.EnvTweak{
			Name:      e.Name,
			Mode:      mode,
			Value:     e.Value,
			Condition: formula.Condition{Expr: present(e.Condition)},
		})
	}
	var err error
	if f.Steps, err = steps("step", root.Steps); err != nil {
		return err
	}
	if f.Tests, err = steps("test", root.Tests); err != nil {
		return err
	}
	for _, a := range root.Artifacts {
		f.Artifacts = append(f.Artifacts, formula.Artifact{
			Name:        a.Name,
			Source:      a.Source,
			Destination: present(a.Destination),
			Condition:   formula.Condition{Expr: present(a.Condition)},
		})
	}
	for _, p := range root.Placeholders {
		ph := formula.Placeholder{
			Name:        p.Name,
			Path:        p.Path,
			Root:        p.Root,
			Attributes:  p.Attributes,
			Generator:   present(p.Generator),
			Output:      p.Output,
			Destination: present(p.Destination),
			Condition:   formula.Condition{Expr: present(p.Condition)},
		}
		if ph.Generator != nil && ph.Output == "" {
			return formula.Errorf(p.DefRange.String(), "placeholder %s has a generator but no output", p.Name)
		}
		f.Placeholders = append(f.Placeholders, ph)
	}
	return nil
}

// dependency translates d. A recommended or optional dependency declares
// an option of the same name, on or off by default, and is gated by it.
func (t *translator) dependency(d *dependsBlock) (formula.Dependency, error) {
	phase, err := formula.ParsePhase(d.Phase)
	if err != nil {
		return formula.Dependency{}, &formula.ConfigError{Subject: "dependency " + d.Name, Err: err}
	}
	dep := formula.Dependency{
		Name:      d.Name,
		Phase:     phase,
		Version:   d.Version,
		Condition: formula.Condition{Expr: present(d.Condition)},
	}
	if !d.Recommended && !d.Optional {
		return dep, nil
	}
	if d.Recommended && d.Optional {
		return dep, formula.Errorf(d.DefRange.String(), "dependency %s is both recommended and optional", d.Name)
	}
	if dep.Condition.Expr != nil {
		return dep, formula.Errorf(d.DefRange.String(), "dependency %s: a recommended or optional dependency cannot have a condition", d.Name)
	}
	if _, ok := t.f.Option(d.Name); !ok {
		t.f.Options = append(t.f.Options, formula.Option{
			Name:        d.Name,
			Description: "Build with " + d.Name + " support",
			Default:     d.Recommended,
		})
	}
	dep.Condition = formula.Condition{Expr: optionRef(d.Name, d.DefRange)}
	return dep, nil
}

func (t *translator) patch(p *patchBlock) (formula.Patch, error) {
	patch := formula.Patch{
		Name:      p.Name,
		URL:       p.URL,
		SHA256:    p.SHA256,
		Strip:     p.Strip,
		Condition: formula.Condition{Expr: present(p.Condition)},
	}
	sources := 0
	for _, s := range []string{p.URL, p.File, p.Data} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return patch, formula.Errorf(p.DefRange.String(), "patch %s needs exactly one of url, file or data", p.Name)
	}
	if p.URL != "" && p.SHA256 == "" {
		return patch, formula.Errorf(p.DefRange.String(), "remote patch %s has no sha256", p.Name)
	}
	if p.Strip < 0 {
		return patch, formula.Errorf(p.DefRange.String(), "patch %s: negative strip", p.Name)
	}
	switch {
	case p.Data != "":
		patch.Data = []byte(p.Data)
	case p.File != "":
		path := p.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(t.f.Dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return patch, &formula.ConfigError{Subject: "patch " + p.Name, Err: err}
		}
		patch.Data = data
	}
	return patch, nil
}

func steps(kind string, blocks []*stepBlock) ([]formula.Step, error) {
	var out []formula.Step
	seen := make(map[string]bool, len(blocks))
	for _, s := range blocks {
		if seen[s.Name] {
			return nil, formula.Errorf(kind+" "+s.Name, "declared more than once")
		}
		seen[s.Name] = true
		if s.Inspect && s.Capture == "" {
			return nil, formula.Errorf(kind+" "+s.Name, "inspect needs a capture file")
		}
		out = append(out, formula.Step{
			Name:       s.Name,
			Command:    s.Command,
			Dir:        s.Dir,
			Env:        present(s.Env),
			Capture:    s.Capture,
			Inspect:    s.Inspect,
			IgnoreExit: s.IgnoreExit,
			Condition:  formula.Condition{Expr: present(s.Condition)},
		})
	}
	return out, nil
}

// present returns nil for an attribute that was left out. gohcl fills
// those with a static null expression.
func present(expr hcl.Expression) hcl.Expression {
	if expr == nil {
		return nil
	}
	if len(expr.Variables()) > 0 {
		return expr
	}
	v, diags := expr.Value(nil)
	if !diags.HasErrors() && v.IsNull() {
		return nil
	}
	return expr
}

// optionRef builds the expression option.<name>.
func optionRef(name string, rng hcl.Range) hcl.Expression {
	return &hclsyntax.ScopeTraversalExpr{
		Traversal: hcl.Traversal{
			hcl.TraverseRoot{Name: "option", SrcRange: rng},
			hcl.TraverseAttr{Name: name, SrcRange: rng},
		},
		SrcRange: rng,
	}
}
