// Package patch verifies and applies source patches to a working tree.
package patch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/ctxlog"
)

// ErrIntegrity is matched by digest mismatches.
var ErrIntegrity = errors.New("integrity violation")

// IntegrityError reports a patch whose content does not match its digest.
type IntegrityError struct {
	Patch string
	URL   string
	Want  string
	Got   string
}

func (e *IntegrityError) Error() string {
	src := e.URL
	if src == "" {
		src = "inline data"
	}
	return fmt.Sprintf("patch %s: sha256 mismatch for %s: expected %s, got %s", e.Patch, src, e.Want, e.Got)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Prepared is a verified, parsed patch ready to be applied.
type Prepared struct {
	Name  string
	Files []*gitdiff.File
}

// Applicator prepares patches. Remote content is verified before it is
// parsed, so a digest mismatch never reaches the tree.
type Applicator struct {
	fetcher  Fetcher
	cacheDir string
}

// Option configures an Applicator.
type Option func(*Applicator)

// WithCache keeps verified downloads in dir, keyed by digest.
func WithCache(dir string) Option {
	return func(a *Applicator) {
		a.cacheDir = dir
	}
}

// New creates an Applicator fetching remote patches with f.
func New(f Fetcher, opts ...Option) *Applicator {
	a := &Applicator{fetcher: f}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PrepareAll prepares, in declaration order, every patch whose condition
// holds under opts. Nothing is applied.
func (a *Applicator) PrepareAll(ctx context.Context, ps []formula.Patch, opts *formula.OptionSet) ([]*Prepared, error) {
	logger := ctxlog.FromContext(ctx)
	var out []*Prepared
	for _, p := range ps {
		ok, err := opts.Allows(p.Condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("Skipping patch", "patch", p.Name)
			continue
		}
		pp, err := a.Prepare(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, nil
}

// Prepare loads p, verifies its digest and parses it.
func (a *Applicator) Prepare(ctx context.Context, p formula.Patch) (*Prepared, error) {
	data, err := a.load(ctx, p)
	if err != nil {
		return nil, err
	}
	files, _, err := gitdiff.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", p.Name, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("patch %s: no file changes found", p.Name)
	}
	if p.Strip > 0 {
		for _, f := range files {
			if f.OldName, err = strip(f.OldName, p.Strip); err == nil {
				f.NewName, err = strip(f.NewName, p.Strip)
			}
			if err != nil {
				return nil, fmt.Errorf("patch %s: %w", p.Name, err)
			}
		}
	}
	return &Prepared{Name: p.Name, Files: files}, nil
}

func strip(name string, n int) (string, error) {
	if name == "" {
		return "", nil
	}
	parts := strings.Split(name, "/")
	if len(parts) <= n {
		return "", fmt.Errorf("cannot strip %d components from %q", n, name)
	}
	return strings.Join(parts[n:], "/"), nil
}

func (a *Applicator) load(ctx context.Context, p formula.Patch) ([]byte, error) {
	if !p.Remote() {
		if p.SHA256 != "" {
			if err := verify(p, p.Data); err != nil {
				return nil, err
			}
		}
		return p.Data, nil
	}
	if p.SHA256 == "" {
		return nil, formula.Errorf("patch "+p.Name, "remote patch %s has no sha256", p.URL)
	}

	cached := a.cachePath(p)
	if cached != "" {
		if data, err := os.ReadFile(cached); err == nil && verify(p, data) == nil {
			ctxlog.FromContext(ctx).Debug("Using cached patch", "patch", p.Name, "path", cached)
			return data, nil
		}
	}

	ctxlog.FromContext(ctx).Info("Downloading patch", "patch", p.Name, "url", p.URL)
	data, err := a.fetcher.Fetch(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", p.Name, err)
	}
	if err := verify(p, data); err != nil {
		return nil, err
	}
	if cached != "" {
		if err := os.MkdirAll(filepath.Dir(cached), 0o755); err == nil {
			_ = os.WriteFile(cached, data, 0o644)
		}
	}
	return data, nil
}

func (a *Applicator) cachePath(p formula.Patch) string {
	if a.cacheDir == "" {
		return ""
	}
	return filepath.Join(a.cacheDir, "patches", strings.ToLower(p.SHA256)+".patch")
}

func verify(p formula.Patch, data []byte) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, p.SHA256) {
		return &IntegrityError{Patch: p.Name, URL: p.URL, Want: p.SHA256, Got: got}
	}
	return nil
}

// -----------------------------------------------------------------------------

type change struct {
	path   string
	data   []byte
	remove bool
}

// Apply applies p to proj. Every file is patched in memory first; the tree
// is only written once all hunks applied, so a patch applies completely or
// not at all.
func Apply(p *Prepared, proj *formula.Project) error {
	var changes []change
	for _, f := range p.Files {
		if f.IsBinary {
			return fmt.Errorf("patch %s: binary patches are not supported (%s)", p.Name, f.NewName)
		}
		if f.IsDelete {
			if _, err := fs.Stat(proj.DirFS, f.OldName); err != nil {
				return fmt.Errorf("patch %s: %w", p.Name, err)
			}
			changes = append(changes, change{path: f.OldName, remove: true})
			continue
		}

		var src []byte
		if !f.IsNew {
			data, err := proj.ReadFile(f.OldName)
			if err != nil {
				return fmt.Errorf("patch %s: %w", p.Name, err)
			}
			src = data
		}
		var dst bytes.Buffer
		if err := gitdiff.Apply(&dst, bytes.NewReader(src), f); err != nil {
			return fmt.Errorf("patch %s: %s: %w", p.Name, f.NewName, err)
		}
		changes = append(changes, change{path: f.NewName, data: dst.Bytes()})
		if f.IsRename {
			changes = append(changes, change{path: f.OldName, remove: true})
		}
	}

	for _, c := range changes {
		if _, err := proj.Path(c.path); err != nil {
			return fmt.Errorf("patch %s: %w", p.Name, err)
		}
	}
	for _, c := range changes {
		var err error
		if c.remove {
			err = proj.Remove(c.path)
		} else {
			err = proj.WriteFile(c.path, c.data)
		}
		if err != nil {
			return fmt.Errorf("patch %s: %w", p.Name, err)
		}
	}
	return nil
}

// ApplyAll applies ps in order.
func ApplyAll(ctx context.Context, ps []*Prepared, proj *formula.Project) error {
	for _, p := range ps {
		if err := Apply(p, proj); err != nil {
			return err
		}
		ctxlog.FromContext(ctx).Info("Applied patch", "patch", p.Name, "files", len(p.Files))
	}
	return nil
}
