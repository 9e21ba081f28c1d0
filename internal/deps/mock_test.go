package deps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/goplus/brewer/internal/keg"
)

// mockRegistry implements keg.Registry and records every lookup.
type mockRegistry struct {
	kegs    map[string]string // name -> version
	lookups []string
}

func newMockRegistry(kegs map[string]string) *mockRegistry {
	return &mockRegistry{kegs: kegs}
}

func (m *mockRegistry) Lookup(ctx context.Context, name string) (*keg.Keg, error) {
	m.lookups = append(m.lookups, name)
	v, ok := m.kegs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, keg.ErrNotInstalled)
	}
	return &keg.Keg{Name: name, Version: v, Prefix: filepath.Join("/opt", name)}, nil
}
