// Package deps resolves the declared dependencies of a formula to installed kegs.
package deps

import (
	"context"
	"errors"
	"os"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/ctxlog"
	"github.com/goplus/brewer/internal/keg"
)

// Resolved is a dependency together with the keg satisfying it.
type Resolved struct {
	formula.Dependency
	Keg *keg.Keg
}

// Resolver looks dependencies up in a keg registry. It never modifies
// anything, so resolving twice, or in another order, is safe.
type Resolver struct {
	reg keg.Registry
}

// New creates a Resolver over reg.
func New(reg keg.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve returns the keg satisfying d. Conditions are not evaluated here;
// see ResolveAll.
func (r *Resolver) Resolve(ctx context.Context, d formula.Dependency) (*keg.Keg, error) {
	c, err := ParseConstraint(d.Version)
	if err != nil {
		return nil, &formula.ConfigError{Subject: "dependency " + d.Name, Err: err}
	}
	k, err := r.reg.Lookup(ctx, d.Name)
	if err != nil {
		if errors.Is(err, keg.ErrNotInstalled) {
			return nil, &UnsatisfiedError{Name: d.Name, Reason: "not installed"}
		}
		return nil, &UnsatisfiedError{Name: d.Name, Err: err}
	}
	if !c.Check(k.Version) {
		return nil, &VersionMismatchError{Name: d.Name, Want: c.String(), Have: k.Version}
	}
	return k, nil
}

// ResolveAll resolves ds in declaration order. Dependencies whose condition
// does not hold under opts are skipped without consulting the registry.
func (r *Resolver) ResolveAll(ctx context.Context, ds []formula.Dependency, opts *formula.OptionSet) ([]Resolved, error) {
	logger := ctxlog.FromContext(ctx)
	var out []Resolved
	for _, d := range ds {
		ok, err := opts.Allows(d.Condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("Skipping dependency", "dependency", d.Name)
			continue
		}
		k, err := r.Resolve(ctx, d)
		if err != nil {
			return nil, err
		}
		logger.Debug("Resolved dependency", "dependency", d.Name, "phase", d.Phase, "version", k.Version, "prefix", k.Prefix)
		out = append(out, Resolved{Dependency: d, Keg: k})
	}
	return out, nil
}

// CheckConflicts fails if any of cs is installed.
func (r *Resolver) CheckConflicts(ctx context.Context, cs []formula.Conflict) error {
	for _, c := range cs {
		_, err := r.reg.Lookup(ctx, c.Name)
		if err == nil {
			return &ConflictError{Name: c.Name, Because: c.Because}
		}
		if !errors.Is(err, keg.ErrNotInstalled) {
			return err
		}
	}
	return nil
}

// CheckRequirements fails on the first applicable requirement whose
// executable is missing.
func CheckRequirements(rs []formula.Requirement, opts *formula.OptionSet) error {
	for _, req := range rs {
		ok, err := opts.Allows(req.Condition)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !isExecutable(req.Executable) {
			reason := req.Message
			if reason == "" {
				reason = req.Executable + " is not executable"
			}
			return &UnsatisfiedError{Name: req.Name, Reason: reason}
		}
	}
	return nil
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !fi.IsDir() && fi.Mode().Perm()&0o111 != 0
}
