// Package lockedfile provides an inter-process mutex backed by an advisory
// lock on a file.
package lockedfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("locked by another process")

// A Mutex provides mutual exclusion between processes sharing path.
type Mutex struct {
	Path string
}

// MutexAt returns a mutex locking the file at path. The file is created on
// first use and never removed.
func MutexAt(path string) *Mutex {
	return &Mutex{Path: path}
}

// TryLock takes the lock if it is free and fails with ErrLocked otherwise.
// It never waits.
func (mu *Mutex) TryLock() (unlock func(), err error) {
	if mu.Path == "" {
		return nil, errors.New("lockedfile: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(mu.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%s: %w", mu.Path, ErrLocked)
		}
		return nil, fmt.Errorf("lock %s: %w", mu.Path, err)
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
