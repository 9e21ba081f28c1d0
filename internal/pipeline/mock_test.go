package pipeline

import (
	"context"
)

// mockRunner implements Runner. Commands named in fail exit with status 2,
// commands named in kill are terminated by a signal.
type mockRunner struct {
	fail    map[string]bool
	kill    map[string]bool
	output  map[string]string
	started []string
}

func (m *mockRunner) Run(ctx context.Context, cmd *Command) (*Result, error) {
	m.started = append(m.started, cmd.String())
	res := &Result{}
	if m.fail[cmd.String()] {
		res.ExitCode = 2
	}
	if m.kill[cmd.String()] {
		res.ExitCode, res.Signaled = -1, true
	}
	if out, ok := m.output[cmd.String()]; ok {
		res.Output = []byte(out)
	}
	return res, nil
}

func static(name string, args ...string) func() (*Command, error) {
	return func() (*Command, error) {
		return &Command{Name: name, Args: args}, nil
	}
}
