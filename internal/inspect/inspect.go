// Package inspect reads test summaries out of captured build output.
//
// Inspection is advisory: its findings are reported as warnings and never
// change the outcome of a build.
package inspect

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrAdvisory is matched by every AdvisoryError.
var ErrAdvisory = errors.New("advisory test failure")

// summaryRE matches lines such as "  FAIL     3" or "FAIL 3 (see log)".
// The count must be a whole number followed by a non-word character or the
// end of the line.
var summaryRE = regexp.MustCompile(`(?im)^[ \t]*FAIL[ \t]*(\d+)\b[^\n]*$`)

// Summary is the result of inspecting test output.
type Summary struct {
	// FailureCount is nil when no summary line was found.
	FailureCount *int
	Line         string
}

// Known reports whether a summary line was found.
func (s Summary) Known() bool {
	return s.FailureCount != nil
}

// Warn reports whether the summary deserves a warning: failures were
// counted, or no count could be found at all.
func (s Summary) Warn() bool {
	return s.FailureCount == nil || *s.FailureCount != 0
}

// Inspect scans output for a failure count. When several summary lines are
// present the last one wins.
func Inspect(output []byte) Summary {
	matches := summaryRE.FindAllSubmatch(output, -1)
	if len(matches) == 0 {
		return Summary{}
	}
	m := matches[len(matches)-1]
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return Summary{}
	}
	return Summary{FailureCount: &n, Line: string(m[0])}
}

// AdvisoryError describes failed or unparseable tests.
type AdvisoryError struct {
	Summary Summary
	Log     string
}

func (e *AdvisoryError) Error() string {
	if !e.Summary.Known() {
		return fmt.Sprintf("could not find a test summary. Details are given in %s", e.Log)
	}
	return fmt.Sprintf("%d tests failed. Details are given in %s", *e.Summary.FailureCount, e.Log)
}

func (e *AdvisoryError) Is(target error) bool {
	return target == ErrAdvisory
}

// Check inspects output and returns an *AdvisoryError pointing at log when
// a warning is due.
func Check(output []byte, log string) (Summary, error) {
	s := Inspect(output)
	if s.Warn() {
		return s, &AdvisoryError{Summary: s, Log: log}
	}
	return s, nil
}
