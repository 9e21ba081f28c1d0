// Package pipeline runs an ordered, all-or-nothing sequence of external
// commands.
//
// Steps run one at a time. Each step's command is assembled immediately
// before it starts and never changes while it runs. The first failing step
// aborts the pipeline: no later step is started and nothing is retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/goplus/brewer/internal/ctxlog"
)

// ErrStepFailed is matched by every StepError.
var ErrStepFailed = errors.New("step failed")

// ErrTerminated is matched by the StepError of a command that was killed
// instead of exiting. Such a step fails even when it ignores its exit
// status.
var ErrTerminated = errors.New("terminated by a signal")

// StepError reports the step that aborted a pipeline.
type StepError struct {
	Index    int
	Name     string
	Command  string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Err)
	default:
		return fmt.Sprintf("step %d (%s): %s exited with status %d", e.Index, e.Name, e.Command, e.ExitCode)
	}
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStepFailed}
	}
	return []error{ErrStepFailed, e.Err}
}

// Step is one entry of a pipeline.
type Step struct {
	Name string

	// Enabled reports whether the step runs. Nil means always.
	Enabled func() (bool, error)

	// Assemble builds the command. It is called once, right before the
	// command starts.
	Assemble func() (*Command, error)
}

// StepStatus is the observed state of one step.
type StepStatus struct {
	Name     string
	State    StepState
	Skipped  bool
	Command  *Command
	ExitCode int
	Output   []byte
}

// Outcome is the result of a pipeline run.
type Outcome struct {
	State        State
	Steps        []StepStatus
	FirstFailure int // index of the failed step, -1 if none
}

// Pipeline runs steps with a Runner.
type Pipeline struct {
	runner Runner
}

// New creates a Pipeline.
func New(r Runner) *Pipeline {
	return &Pipeline{runner: r}
}

// Run executes steps in order. The returned Outcome is always non-nil; the
// error is a *StepError when a step failed.
func (p *Pipeline) Run(ctx context.Context, steps []Step) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	out := &Outcome{
		State:        NotStarted,
		Steps:        make([]StepStatus, len(steps)),
		FirstFailure: -1,
	}
	for i, s := range steps {
		out.Steps[i] = StepStatus{Name: s.Name, State: Pending}
	}
	out.State = InProgress

	for i, s := range steps {
		st := &out.Steps[i]
		err := p.runStep(ctx, s, st)
		if err == nil {
			continue
		}
		out.FirstFailure = i
		out.State = PipelineAborted
		for j := i + 1; j < len(steps); j++ {
			_ = out.Steps[j].transition(Aborted)
		}
		serr := &StepError{Index: i, Name: s.Name, ExitCode: st.ExitCode}
		if st.Command != nil {
			serr.Command = st.Command.String()
		}
		if !errors.Is(err, errExit) {
			serr.Err = err
		}
		logger.Error("Step failed", "step", s.Name, "index", i, "error", serr)
		return out, serr
	}

	out.State = Complete
	return out, nil
}

var errExit = errors.New("non-zero exit")

func (p *Pipeline) runStep(ctx context.Context, s Step, st *StepStatus) error {
	logger := ctxlog.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return p.fail(st, err)
	}

	if s.Enabled != nil {
		ok, err := s.Enabled()
		if err != nil {
			return p.fail(st, err)
		}
		if !ok {
			st.Skipped = true
			logger.Debug("Skipping step", "step", s.Name)
			return st.transition(Succeeded)
		}
	}

	cmd, err := s.Assemble()
	if err != nil {
		return p.fail(st, err)
	}
	st.Command = cmd

	if err := st.transition(Running); err != nil {
		return err
	}
	logger.Info("Running step", "step", s.Name, "command", cmd.String())

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		_ = st.transition(Failed)
		return err
	}
	st.ExitCode = res.ExitCode
	st.Output = res.Output

	if res.Signaled {
		_ = st.transition(Failed)
		return ErrTerminated
	}
	if res.ExitCode != 0 && !cmd.IgnoreExit {
		_ = st.transition(Failed)
		return errExit
	}
	if res.ExitCode != 0 {
		logger.Warn("Step exited with non-zero status, ignored", "step", s.Name, "status", res.ExitCode)
	}
	return st.transition(Succeeded)
}

// fail marks a step that could not be started.
func (p *Pipeline) fail(st *StepStatus, err error) error {
	_ = st.transition(Running)
	_ = st.transition(Failed)
	return err
}
