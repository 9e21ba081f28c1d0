package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Command is a fully assembled external invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // complete environment; nil inherits the process environment

	// Capture, when set, is a file receiving the combined output.
	Capture string

	// IgnoreExit records the exit status without failing the step.
	IgnoreExit bool
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is what a Runner observed.
type Result struct {
	ExitCode int
	Output   []byte // combined output, kept only for captured commands

	// Signaled is set when the process was terminated from outside
	// instead of exiting. ExitCode is then -1.
	Signaled bool
}

// Runner executes one command and blocks until it exits. A non-nil error
// means the command could not be run at all; a command that ran and failed
// reports a non-zero ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd *Command) (*Result, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ExecRunner) Run(ctx context.Context, c *Command) (*Result, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var captured bytes.Buffer
	if c.Capture != "" {
		if err := os.MkdirAll(filepath.Dir(c.Capture), 0o755); err != nil {
			return nil, err
		}
		f, err := os.Create(c.Capture)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		w := io.MultiWriter(f, &captured, stdout)
		cmd.Stdout = w
		cmd.Stderr = w
	}

	err := cmd.Run()
	res := &Result{}
	if c.Capture != "" {
		res.Output = captured.Bytes()
	}
	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return nil, err
		}
		res.ExitCode = ee.ExitCode()
		res.Signaled = !ee.Exited()
	}
	return res, nil
}

// MergeEnv returns base with every key in overrides replaced or appended,
// sorted by key.
func MergeEnv(base []string, overrides map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range overrides {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
