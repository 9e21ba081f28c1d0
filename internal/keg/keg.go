// Copyright 2024 The brewer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keg looks up installed packages.
//
// Root layout:
//
//	root/
//	  Cellar/<name>/<version>/     # installation prefix of one build
//	    INSTALL_RECEIPT.json
//	    include/ lib/ bin/ ...
//	  opt/<name> -> ../Cellar/<name>/<version>
package keg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotInstalled is returned by Lookup for an unknown package.
var ErrNotInstalled = errors.New("not installed")

// Keg is an installed package.
type Keg struct {
	Name    string
	Version string
	Prefix  string
}

func (k *Keg) Include() string   { return filepath.Join(k.Prefix, "include") }
func (k *Keg) Lib() string       { return filepath.Join(k.Prefix, "lib") }
func (k *Keg) Bin() string       { return filepath.Join(k.Prefix, "bin") }
func (k *Keg) PkgConfig() string { return filepath.Join(k.Prefix, "lib", "pkgconfig") }

// Registry resolves package names to installed kegs.
type Registry interface {
	// Lookup returns the installed keg of name, or an error matching
	// ErrNotInstalled.
	Lookup(ctx context.Context, name string) (*Keg, error)
}

// Local is a Registry over a root directory on the local filesystem.
type Local struct {
	root  string
	cache *lru.Cache[string, *Keg]
}

// NewLocal returns a registry rooted at root.
func NewLocal(root string) (*Local, error) {
	cache, err := lru.New[string, *Keg](256)
	if err != nil {
		return nil, err
	}
	return &Local{root: root, cache: cache}, nil
}

// Root returns the registry root directory.
func (l *Local) Root() string {
	return l.root
}

// OptDir returns the stable link location of name.
func (l *Local) OptDir(name string) string {
	return filepath.Join(l.root, "opt", name)
}

// CellarDir returns the installation prefix of name at version.
func (l *Local) CellarDir(name, version string) string {
	return filepath.Join(l.root, "Cellar", name, version)
}

func (l *Local) Lookup(ctx context.Context, name string) (*Keg, error) {
	if k, ok := l.cache.Get(name); ok {
		return k, nil
	}
	prefix, err := filepath.EvalSymlinks(l.OptDir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
		}
		return nil, err
	}
	fi, err := os.Stat(prefix)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %s is not a directory", name, prefix)
	}

	version := versionFromDir(prefix)
	if r, err := ReadReceipt(prefix); err == nil && r.Version != "" {
		version = r.Version
	}
	k := &Keg{Name: name, Version: version, Prefix: prefix}
	l.cache.Add(name, k)
	return k, nil
}

// Link points opt/<name> at prefix, replacing an existing link.
func (l *Local) Link(name, prefix string) error {
	opt := l.OptDir(name)
	if err := os.MkdirAll(filepath.Dir(opt), 0o755); err != nil {
		return err
	}
	if err := os.Remove(opt); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.cache.Remove(name)
	return os.Symlink(prefix, opt)
}

// versionFromDir takes the version from a Cellar/<name>/<version> path,
// dropping a "_N" package revision.
func versionFromDir(prefix string) string {
	v := filepath.Base(prefix)
	if i := strings.LastIndex(v, "_"); i > 0 {
		v = v[:i]
	}
	return v
}
