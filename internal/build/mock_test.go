package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/brewer/internal/keg"
	"github.com/goplus/brewer/internal/pipeline"
)

// mockRegistry implements keg.Registry over a fixed set of kegs.
type mockRegistry struct {
	kegs    map[string]*keg.Keg
	lookups []string
}

func (m *mockRegistry) Lookup(ctx context.Context, name string) (*keg.Keg, error) {
	m.lookups = append(m.lookups, name)
	k, ok := m.kegs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, keg.ErrNotInstalled)
	}
	return k, nil
}

// newMockRegistry creates a keg for every name under root, with the usual
// include, lib, bin and pkgconfig directories.
func newMockRegistry(root string, versions map[string]string) *mockRegistry {
	m := &mockRegistry{kegs: map[string]*keg.Keg{}}
	for name, version := range versions {
		k := &keg.Keg{Name: name, Version: version, Prefix: filepath.Join(root, name, version)}
		for _, dir := range []string{k.Include(), k.Bin(), k.PkgConfig()} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				panic(err)
			}
		}
		m.kegs[name] = k
	}
	return m
}

// mockRunner implements pipeline.Runner. It behaves like the tools a
// build calls: captured commands write their output to the capture file,
// and a generator invoked with "-o OUT" creates OUT.
type mockRunner struct {
	exit     map[string]int
	output   map[string]string
	commands []*pipeline.Command
}

func commandKey(cmd *pipeline.Command) string {
	return strings.Join(append([]string{filepath.Base(cmd.Name)}, cmd.Args...), " ")
}

func (m *mockRunner) started() []string {
	var out []string
	for _, c := range m.commands {
		out = append(out, commandKey(c))
	}
	return out
}

func (m *mockRunner) find(name string) *pipeline.Command {
	for _, c := range m.commands {
		if filepath.Base(c.Name) == name {
			return c
		}
	}
	return nil
}

func (m *mockRunner) Run(ctx context.Context, cmd *pipeline.Command) (*pipeline.Result, error) {
	m.commands = append(m.commands, cmd)
	key := commandKey(cmd)
	res := &pipeline.Result{ExitCode: m.exit[key]}

	if cmd.Capture != "" {
		out := []byte(m.output[key])
		if err := os.MkdirAll(filepath.Dir(cmd.Capture), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(cmd.Capture, out, 0o644); err != nil {
			return nil, err
		}
		res.Output = out
	}
	for i, arg := range cmd.Args {
		if arg == "-o" && i+1 < len(cmd.Args) {
			if err := os.WriteFile(filepath.Join(cmd.Dir, cmd.Args[i+1]), []byte("generated"), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// mockFetcher implements patch.Fetcher over canned content.
type mockFetcher struct {
	content map[string]string
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s, ok := m.content[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: 404 Not Found", url)
	}
	return []byte(s), nil
}
