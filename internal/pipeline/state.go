package pipeline

import "fmt"

// StepState is the lifecycle state of one step.
type StepState int

const (
	Pending StepState = iota
	Running
	Succeeded
	Failed
	Aborted
)

func (s StepState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("StepState(%d)", int(s))
}

// State is the lifecycle state of a whole pipeline run.
type State int

const (
	NotStarted State = iota
	InProgress
	Complete
	PipelineAborted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case InProgress:
		return "in progress"
	case Complete:
		return "complete"
	case PipelineAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transition moves st to the state to, failing on moves the lifecycle
// does not allow. Skipped steps go straight from Pending to Succeeded.
func (st *StepStatus) transition(to StepState) error {
	if !allowed(st.State, to) {
		return fmt.Errorf("step %q: disallowed transition %s -> %s", st.Name, st.State, to)
	}
	st.State = to
	return nil
}

func allowed(from, to StepState) bool {
	switch from {
	case Pending:
		return to == Running || to == Succeeded || to == Aborted
	case Running:
		return to == Succeeded || to == Failed
	default:
		return false
	}
}
