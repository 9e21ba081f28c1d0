// Package build runs one formula against a checked out source tree and
// installs the result into a prefix.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/ctxlog"
	"github.com/goplus/brewer/internal/deps"
	"github.com/goplus/brewer/internal/inreplace"
	"github.com/goplus/brewer/internal/inspect"
	"github.com/goplus/brewer/internal/keg"
	"github.com/goplus/brewer/internal/lockedfile"
	"github.com/goplus/brewer/internal/patch"
	"github.com/goplus/brewer/internal/pipeline"
	"github.com/goplus/brewer/internal/publish"
	"github.com/goplus/brewer/internal/recipe"
)

// LockFile is created in every source tree being built.
const LockFile = ".brewer.lock"

// Options configures a Builder.
type Options struct {
	Registry keg.Registry
	Runner   pipeline.Runner
	Fetcher  patch.Fetcher

	// CacheDir keeps downloaded patches. Empty disables caching.
	CacheDir string

	// Mirror, when set, receives a copy of every installed artifact.
	Mirror publish.Mirror

	// Environ is the base environment of build commands. Nil means the
	// environment of the current process.
	Environ []string
}

// Builder builds formulas.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.Runner == nil {
		opts.Runner = &pipeline.ExecRunner{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &patch.HTTPFetcher{}
	}
	return &Builder{opts: opts}
}

// Request describes one invocation.
type Request struct {
	Formula   *formula.Formula
	Overrides map[string]bool

	// SourceDir is the checked out working tree.
	SourceDir string
	// Prefix is the installation prefix.
	Prefix string
	// OptPrefix is the stable link to the prefix. Defaults to Prefix.
	OptPrefix string
}

// Result describes a finished build.
type Result struct {
	BuildID    string
	Options    *formula.OptionSet
	Deps       []deps.Resolved
	Outcome    *pipeline.Outcome
	Installed  []string
	Advisories []error
	Receipt    *keg.Receipt
}

// Build runs req. Dependencies, requirements, conflicts and patches are all
// checked before the tree is modified. Test summary warnings are reported
// in Result.Advisories and never fail the build.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	f := req.Formula
	if f == nil {
		return nil, errors.New("build: no formula")
	}
	if req.SourceDir == "" || req.Prefix == "" {
		return nil, fmt.Errorf("build %s: source directory and prefix are required", f.Name)
	}
	if req.OptPrefix == "" {
		req.OptPrefix = req.Prefix
	}

	unlock, err := lockedfile.MutexAt(filepath.Join(req.SourceDir, LockFile)).TryLock()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", f.Name, err)
	}
	defer unlock()

	res := &Result{BuildID: uuid.NewString()}
	logger := ctxlog.FromContext(ctx).With("formula", f.Name, "build", res.BuildID)
	ctx = ctxlog.WithLogger(ctx, logger)

	if res.Options, err = f.NewOptionSet(req.Overrides); err != nil {
		return res, err
	}
	opts := res.Options
	logger.Info("Building", "version", f.Version, "options", opts.String(), "source", req.SourceDir)

	resolver := deps.New(b.opts.Registry)
	if err := resolver.CheckConflicts(ctx, f.Conflicts); err != nil {
		return res, err
	}
	if err := deps.CheckRequirements(f.Requirements, opts); err != nil {
		return res, err
	}
	if res.Deps, err = resolver.ResolveAll(ctx, f.Dependencies, opts); err != nil {
		return res, err
	}

	scope := recipe.NewScope(f, opts, recipe.Paths{
		Prefix:    req.Prefix,
		OptPrefix: req.OptPrefix,
		BuildPath: req.SourceDir,
	})
	for _, d := range res.Deps {
		scope.SetDep(d.Name, d.Keg)
	}

	var applicatorOpts []patch.Option
	if b.opts.CacheDir != "" {
		applicatorOpts = append(applicatorOpts, patch.WithCache(b.opts.CacheDir))
	}
	prepared, err := patch.New(b.opts.Fetcher, applicatorOpts...).PrepareAll(ctx, f.Patches, opts)
	if err != nil {
		return res, err
	}

	proj := formula.NewProject(req.SourceDir)
	if err := patch.ApplyAll(ctx, prepared, proj); err != nil {
		return res, err
	}
	if err := b.edit(ctx, f, proj, opts, scope); err != nil {
		return res, err
	}

	env, err := b.environment(f, res.Deps, opts, scope)
	if err != nil {
		return res, err
	}

	p := pipeline.New(b.opts.Runner)
	res.Outcome, err = p.Run(ctx, b.steps(f.Steps, req.SourceDir, opts, scope, env))
	if err != nil {
		return res, err
	}

	files, err := b.placeholders(ctx, f, req.SourceDir, opts, scope, env)
	if err != nil {
		return res, err
	}
	artifacts, err := b.artifacts(f, req.SourceDir, opts, scope)
	if err != nil {
		return res, err
	}
	files = append(artifacts, files...)

	var pubOpts []publish.Option
	if b.opts.Mirror != nil {
		pubOpts = append(pubOpts, publish.WithMirror(b.opts.Mirror, filepath.ToSlash(filepath.Join(f.Name, f.Version))))
	}
	if res.Installed, err = publish.New(req.Prefix, pubOpts...).Publish(ctx, files); err != nil {
		return res, err
	}

	res.Advisories = b.inspect(ctx, f, res.Outcome, req, files)

	res.Receipt = &keg.Receipt{
		Name:      f.Name,
		Version:   f.Version,
		BuildID:   res.BuildID,
		Options:   opts.Map(),
		BuildTime: time.Now().UTC(),
	}
	for _, d := range res.Deps {
		if d.Phase == formula.Runtime {
			res.Receipt.RuntimeDeps = append(res.Receipt.RuntimeDeps, d.Name)
		}
	}
	for _, a := range res.Advisories {
		res.Receipt.Advisories = append(res.Receipt.Advisories, a.Error())
	}
	if err := keg.WriteReceipt(req.Prefix, res.Receipt); err != nil {
		return res, fmt.Errorf("write receipt: %w", err)
	}
	logger.Info("Installed", "prefix", req.Prefix, "files", len(res.Installed), "advisories", len(res.Advisories))
	return res, nil
}

func (b *Builder) edit(ctx context.Context, f *formula.Formula, proj *formula.Project, opts *formula.OptionSet, scope *recipe.Scope) error {
	for _, e := range f.Edits {
		ok, err := opts.Allows(e.Condition)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		edit := inreplace.Edit{File: e.File, Pattern: e.Pattern, Regex: e.Regex}
		if edit.Replacement, err = scope.String(e.Replacement); err != nil {
			return err
		}
		if edit.Append, err = scope.Strings(e.Append); err != nil {
			return err
		}
		if err := inreplace.Apply(proj, edit); err != nil {
			return err
		}
		ctxlog.FromContext(ctx).Debug("Edited source", "file", e.File)
	}
	return nil
}

func (b *Builder) environment(f *formula.Formula, resolved []deps.Resolved, opts *formula.OptionSet, scope *recipe.Scope) (*environ, error) {
	base := b.opts.Environ
	if base == nil {
		base = os.Environ()
	}
	env := newEnviron(base)
	for _, d := range resolved {
		env.use(d.Keg)
	}
	for _, t := range f.Env {
		ok, err := opts.Allows(t.Condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, err := scope.String(t.Value)
		if err != nil {
			return nil, err
		}
		env.tweak(t.Name, t.Mode, v)
	}
	return env, nil
}

// steps turns formula steps into pipeline steps. Conditions and arguments
// are evaluated only when the pipeline reaches each step.
func (b *Builder) steps(fs []formula.Step, dir string, opts *formula.OptionSet, scope *recipe.Scope, env *environ) []pipeline.Step {
	out := make([]pipeline.Step, 0, len(fs))
	for _, s := range fs {
		out = append(out, pipeline.Step{
			Name: s.Name,
			Enabled: func() (bool, error) {
				return opts.Allows(s.Condition)
			},
			Assemble: func() (*pipeline.Command, error) {
				return assemble(s, dir, scope, env)
			},
		})
	}
	return out
}

func assemble(s formula.Step, dir string, scope *recipe.Scope, env *environ) (*pipeline.Command, error) {
	args, err := scope.Strings(s.Command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, formula.Errorf("step "+s.Name, "empty command")
	}
	extra, err := scope.StringMap(s.Env)
	if err != nil {
		return nil, err
	}
	cmd := &pipeline.Command{
		Name:       args[0],
		Args:       args[1:],
		Dir:        inTree(dir, s.Dir),
		Env:        env.list(extra),
		IgnoreExit: s.IgnoreExit,
	}
	if s.Capture != "" {
		cmd.Capture = inTree(dir, s.Capture)
	}
	return cmd, nil
}

// placeholders writes the selected placeholder documents, runs their
// generators and returns the files to install.
func (b *Builder) placeholders(ctx context.Context, f *formula.Formula, dir string, opts *formula.OptionSet, scope *recipe.Scope, env *environ) ([]publish.File, error) {
	var (
		files []publish.File
		gens  []pipeline.Step
	)
	for _, ph := range f.Placeholders {
		ok, err := opts.Allows(ph.Condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		doc := publish.Placeholder{Path: inTree(dir, ph.Path), Root: ph.Root, Attributes: ph.Attributes}
		if err := doc.Write(); err != nil {
			return nil, err
		}
		ctxlog.FromContext(ctx).Info("Wrote placeholder", "placeholder", ph.Name, "path", doc.Path)

		src := doc.Path
		if ph.Generator != nil {
			src = inTree(dir, ph.Output)
			gens = append(gens, pipeline.Step{
				Name: "placeholder " + ph.Name,
				Assemble: func() (*pipeline.Command, error) {
					return assemble(formula.Step{Name: ph.Name, Command: ph.Generator}, dir, scope, env)
				},
			})
		}
		dest, err := scope.String(ph.Destination)
		if err != nil {
			return nil, err
		}
		if dest == "" {
			dest = filepath.Base(src)
		}
		files = append(files, publish.File{Source: src, Destination: dest})
	}
	if len(gens) > 0 {
		if _, err := pipeline.New(b.opts.Runner).Run(ctx, gens); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (b *Builder) artifacts(f *formula.Formula, dir string, opts *formula.OptionSet, scope *recipe.Scope) ([]publish.File, error) {
	var files []publish.File
	for _, a := range f.Artifacts {
		ok, err := opts.Allows(a.Condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		src, err := scope.String(a.Source)
		if err != nil {
			return nil, err
		}
		if src == "" {
			return nil, formula.Errorf("artifact "+a.Name, "empty source")
		}
		dest, err := scope.String(a.Destination)
		if err != nil {
			return nil, err
		}
		if dest == "" {
			dest = filepath.Base(src)
		}
		files = append(files, publish.File{Source: inTree(dir, src), Destination: dest})
	}
	return files, nil
}

// inspect checks the output of every step that asked for it. The warning
// points at the installed copy of the log when there is one.
func (b *Builder) inspect(ctx context.Context, f *formula.Formula, out *pipeline.Outcome, req Request, installed []publish.File) []error {
	logger := ctxlog.FromContext(ctx)
	var advisories []error
	for i, s := range f.Steps {
		st := out.Steps[i]
		if !s.Inspect || st.Skipped {
			continue
		}
		log := inTree(req.SourceDir, s.Capture)
		for _, file := range installed {
			if file.Source == log {
				log = filepath.Join(req.OptPrefix, file.Destination)
				break
			}
		}
		summary, err := inspect.Check(st.Output, log)
		if err != nil {
			logger.Warn("Test summary", "step", s.Name, "warning", err.Error())
			advisories = append(advisories, err)
			continue
		}
		logger.Info("Test summary", "step", s.Name, "failures", *summary.FailureCount)
	}
	return advisories
}

// RunTests runs the post-install tests of an installed formula. Options
// default to those recorded in the receipt of prefix.
func (b *Builder) RunTests(ctx context.Context, req Request) (*pipeline.Outcome, error) {
	f := req.Formula
	if f == nil {
		return nil, errors.New("test: no formula")
	}
	if req.OptPrefix == "" {
		req.OptPrefix = req.Prefix
	}
	overrides := req.Overrides
	if overrides == nil {
		if r, err := keg.ReadReceipt(req.Prefix); err == nil {
			overrides = r.Options
		}
	}
	opts, err := f.NewOptionSet(overrides)
	if err != nil {
		return nil, err
	}
	resolved, err := deps.New(b.opts.Registry).ResolveAll(ctx, f.Dependencies, opts)
	if err != nil {
		return nil, err
	}
	dir := req.SourceDir
	if dir == "" {
		dir = req.Prefix
	}
	scope := recipe.NewScope(f, opts, recipe.Paths{Prefix: req.Prefix, OptPrefix: req.OptPrefix, BuildPath: dir})
	for _, d := range resolved {
		scope.SetDep(d.Name, d.Keg)
	}
	env, err := b.environment(f, resolved, opts, scope)
	if err != nil {
		return nil, err
	}
	return pipeline.New(b.opts.Runner).Run(ctx, b.steps(f.Tests, dir, opts, scope, env))
}

func inTree(dir, rel string) string {
	if rel == "" {
		return dir
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(dir, filepath.FromSlash(rel))
}
