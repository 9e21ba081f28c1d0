package formula

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrOutsideTree is returned for paths that leave the project directory.
var ErrOutsideTree = errors.New("path is outside the source tree")

// -----------------------------------------------------------------------------

// Project is the working source tree a formula builds. It is mutated in
// place by patches, edits and build steps.
type Project struct {
	Dir   string
	DirFS fs.FS
}

// NewProject returns a Project rooted at dir.
func NewProject(dir string) *Project {
	return &Project{Dir: dir, DirFS: os.DirFS(dir)}
}

// Path returns the absolute location of a tree-relative path. Absolute
// paths and paths with ".." segments leading out of the tree are rejected.
func (p *Project) Path(name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%s: %w", name, ErrOutsideTree)
	}
	return filepath.Join(p.Dir, local), nil
}

// ReadFile reads the content of a file in the project.
func (p *Project) ReadFile(path string) ([]byte, error) {
	file, err := p.DirFS.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// WriteFile replaces the content of a file in the project, keeping the
// permissions of an existing file.
func (p *Project) WriteFile(path string, data []byte) error {
	dst, err := p.Path(path)
	if err != nil {
		return err
	}
	perm := fs.FileMode(0o644)
	if fi, err := os.Stat(dst); err == nil {
		perm = fi.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}

// Remove deletes a file from the project.
func (p *Project) Remove(path string) error {
	dst, err := p.Path(path)
	if err != nil {
		return err
	}
	return os.Remove(dst)
}

// -----------------------------------------------------------------------------
