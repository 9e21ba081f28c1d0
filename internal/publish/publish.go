// Package publish installs build outputs into an installation prefix.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/brewer/internal/ctxlog"
)

// File maps a build output to its place in the prefix.
type File struct {
	Source      string // absolute path
	Destination string // relative to the prefix
}

// Mirror receives a copy of every published file.
type Mirror interface {
	Upload(ctx context.Context, key, path string) error
}

// Publisher copies files into a prefix.
type Publisher struct {
	prefix string
	mirror Mirror
	keyPfx string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMirror uploads every published file to m under keyPrefix/<destination>.
func WithMirror(m Mirror, keyPrefix string) Option {
	return func(p *Publisher) {
		p.mirror = m
		p.keyPfx = keyPrefix
	}
}

// New creates a Publisher installing into prefix.
func New(prefix string, opts ...Option) *Publisher {
	p := &Publisher{prefix: prefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prefix returns the installation prefix.
func (p *Publisher) Prefix() string {
	return p.prefix
}

// Publish copies files in order and returns their installed paths. A
// missing source is an error.
func (p *Publisher) Publish(ctx context.Context, files []File) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	installed := make([]string, 0, len(files))
	for _, f := range files {
		dst, err := p.target(f.Destination)
		if err != nil {
			return installed, err
		}
		if err := copyFile(f.Source, dst); err != nil {
			return installed, fmt.Errorf("publish %s: %w", f.Destination, err)
		}
		logger.Info("Installed artifact", "source", f.Source, "destination", dst)
		installed = append(installed, dst)

		if p.mirror != nil {
			key := strings.TrimPrefix(filepath.ToSlash(filepath.Join(p.keyPfx, f.Destination)), "/")
			if err := p.mirror.Upload(ctx, key, dst); err != nil {
				return installed, fmt.Errorf("mirror %s: %w", key, err)
			}
		}
	}
	return installed, nil
}

// target resolves a prefix-relative destination, refusing paths that
// escape the prefix.
func (p *Publisher) target(dest string) (string, error) {
	if filepath.IsAbs(dest) {
		return "", fmt.Errorf("publish %s: destination must be relative to the prefix", dest)
	}
	dst := filepath.Join(p.prefix, filepath.FromSlash(dest))
	rel, err := filepath.Rel(p.prefix, dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("publish %s: destination escapes the prefix", dest)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return os.CopyFS(dst, os.DirFS(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
