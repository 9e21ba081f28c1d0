// Package vcs checks out source trees of HEAD builds.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/brewer/internal/ctxlog"
)

// VCS defines the interface for version control operations.
type VCS interface {
	// Sync makes dir a pristine checkout of ref at remote. ref can be a
	// branch, a tag or a commit hash; empty means the remote HEAD. dir is
	// created when missing and reset when it already holds a checkout.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Revision returns the commit checked out in dir.
	Revision(ctx context.Context, dir string) (string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git  string
	keep []string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// WithKeep leaves the named top-level files alone when a checkout is reset.
func WithKeep(names ...string) GitOption {
	return func(g *gitVCS) {
		g.keep = append(g.keep, names...)
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) ensureInit(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		return g.run(ctx, dir, "init", "--quiet")
	}
	return nil
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := g.ensureInit(ctx, dir); err != nil {
		return err
	}
	if err := g.fetch(ctx, remote, dir, ref); err != nil {
		return err
	}
	if err := g.checkout(ctx, dir, "FETCH_HEAD"); err != nil {
		return err
	}
	if err := g.clean(ctx, dir); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Synced source", "remote", remote, "ref", ref, "dir", dir)
	return nil
}

func (g *gitVCS) fetch(ctx context.Context, remote, dir, ref string) error {
	args := []string{"fetch", "--quiet", "--depth", "1", remote}
	if ref != "" {
		args = append(args, ref)
	}
	if err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// checkout discards local changes, such as patches applied by an earlier
// build.
func (g *gitVCS) checkout(ctx context.Context, dir, ref string) error {
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", ref); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) clean(ctx context.Context, dir string) error {
	args := []string{"clean", "--quiet", "-ffdx"}
	for _, name := range g.keep {
		args = append(args, "-e", "/"+name)
	}
	if err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}

func (g *gitVCS) Revision(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
