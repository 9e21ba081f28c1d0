package deps

import (
	"errors"
	"fmt"
)

var (
	ErrUnsatisfied     = errors.New("unsatisfied dependency")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrConflict        = errors.New("conflicting package installed")
)

// UnsatisfiedError reports a dependency or requirement that is not present.
type UnsatisfiedError struct {
	Name   string
	Reason string
	Err    error
}

func (e *UnsatisfiedError) Error() string {
	msg := "unsatisfied dependency " + e.Name
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsatisfiedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnsatisfied}
	}
	return []error{ErrUnsatisfied, e.Err}
}

// VersionMismatchError reports an installed version failing its predicate.
type VersionMismatchError struct {
	Name string
	Want string
	Have string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("dependency %s: installed version %s does not satisfy %s", e.Name, e.Have, e.Want)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// ConflictError reports an installed package the formula conflicts with.
type ConflictError struct {
	Name    string
	Because string
}

func (e *ConflictError) Error() string {
	msg := "cannot install: conflicting package " + e.Name + " is installed"
	if e.Because != "" {
		msg += " (" + e.Because + ")"
	}
	return msg
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
