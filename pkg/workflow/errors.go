package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for workflow construction and validation.
var (
	// ErrConfiguration indicates a bad directory, filename or option value.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDuplicateName indicates a name collision in a JobSet or DAG.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrUnknownPrerequisite indicates a DAG edge pointing at a node that was never added.
	ErrUnknownPrerequisite = errors.New("unknown prerequisite")

	// ErrCyclicDependency indicates the prerequisite relation contains a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrTypeMismatch indicates the wrong kind of value where a Job or JobSet was expected.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNoOwner indicates a Job was rendered or transferred before being added to a JobSet.
	ErrNoOwner = errors.New("job has no owning job set")

	// ErrNoJobs indicates a JobSet descriptor was requested with no jobs attached.
	ErrNoJobs = errors.New("job set has no jobs")

	// ErrNoProvider indicates files must be copied but no shared-storage provider is set.
	ErrNoProvider = errors.New("no shared-storage provider configured")

	// ErrNoSubmitter indicates Submit was called without a scheduler submitter.
	ErrNoSubmitter = errors.New("no scheduler submitter configured")
)

// ConfigurationError reports a bad configuration value, fatal at construction.
type ConfigurationError struct {
	// Field names the offending option (e.g., "out_dir").
	Field string

	// Value is the rejected value.
	Value string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s %q", ErrConfiguration, e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// DuplicateNameError reports a name that is already registered in Scope.
type DuplicateNameError struct {
	// Scope identifies the container ("job set jobs.condor", "dag jobs.dag").
	Scope string
	Name  string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s: job %q already exists in %s", ErrDuplicateName, e.Name, e.Scope)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// UnknownPrerequisiteError reports prerequisites of Node that have no DAG node.
type UnknownPrerequisiteError struct {
	Node    string
	Missing []string
}

func (e *UnknownPrerequisiteError) Error() string {
	return fmt.Sprintf("%s: requirements on %s do not have corresponding jobs: %s",
		ErrUnknownPrerequisite, e.Node, strings.Join(e.Missing, ", "))
}

func (e *UnknownPrerequisiteError) Unwrap() error { return ErrUnknownPrerequisite }

// CyclicDependencyError reports an edge Parent -> Child that closes a cycle through Node.
type CyclicDependencyError struct {
	Node   string
	Parent string
	Child  string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%s: %s is in requirements for %s (edge %s -> %s)",
		ErrCyclicDependency, e.Node, e.Child, e.Parent, e.Child)
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// TypeMismatchError reports a value of the wrong kind.
type TypeMismatchError struct {
	// Want describes what was expected ("job set", "job").
	Want string

	// Got describes what was supplied.
	Got string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrTypeMismatch, e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// IsDuplicateName returns true if err reports a name collision.
func IsDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsCyclic returns true if err reports a dependency cycle.
func IsCyclic(err error) bool {
	return errors.Is(err, ErrCyclicDependency)
}

// IsUnknownPrerequisite returns true if err reports a dangling DAG edge.
func IsUnknownPrerequisite(err error) bool {
	return errors.Is(err, ErrUnknownPrerequisite)
}
