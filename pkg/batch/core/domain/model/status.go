package model

import (
	"fmt"
	"strings"
)

// JobStatus is the batch status of a JobExecution or StepExecution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusStopping  JobStatus = "STOPPING"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusAbandoned JobStatus = "ABANDONED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// statusOrder ranks statuses so that aggregation can pick the worst one.
var statusOrder = map[JobStatus]int{
	BatchStatusCompleted: 0,
	BatchStatusStarting:  1,
	BatchStatusStarted:   2,
	BatchStatusStopping:  3,
	BatchStatusStopped:   4,
	BatchStatusFailed:    5,
	BatchStatusAbandoned: 6,
	BatchStatusUnknown:   7,
}

func (s JobStatus) String() string { return string(s) }

// IsFinished reports whether s is terminal.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	}
	return false
}

// IsRunning reports whether s is STARTING, STARTED or STOPPING.
func (s JobStatus) IsRunning() bool {
	return s == BatchStatusStarting || s == BatchStatusStarted || s == BatchStatusStopping
}

// IsUnsuccessful reports whether s is FAILED or worse.
func (s JobStatus) IsUnsuccessful() bool {
	return statusOrder[s] >= statusOrder[BatchStatusFailed]
}

// Upgrade returns the more severe of s and other.
func (s JobStatus) Upgrade(other JobStatus) JobStatus {
	if statusOrder[other] > statusOrder[s] {
		return other
	}
	return s
}

// ToExitStatus maps a batch status onto its default exit status.
func (s JobStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped, BatchStatusStopping:
		return ExitStatusStopped
	case BatchStatusStarting, BatchStatusStarted:
		return ExitStatusExecuting
	default:
		return ExitStatusUnknown
	}
}

// ParseJobStatus converts a stored string back into a JobStatus.
func ParseJobStatus(v string) JobStatus {
	s := JobStatus(strings.ToUpper(v))
	if _, ok := statusOrder[s]; ok {
		return s
	}
	return BatchStatusUnknown
}

var validTransitions = map[JobStatus][]JobStatus{
	BatchStatusStarting: {BatchStatusStarted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned},
	BatchStatusStarted:  {BatchStatusCompleted, BatchStatusFailed, BatchStatusStopping, BatchStatusStopped},
	BatchStatusStopping: {BatchStatusStopped, BatchStatusFailed, BatchStatusCompleted},
	BatchStatusStopped:  {BatchStatusAbandoned},
	BatchStatusFailed:   {BatchStatusAbandoned},
	BatchStatusUnknown:  {BatchStatusAbandoned},
}

// CanTransition reports whether current -> next is a legal lifecycle move.
func CanTransition(current, next JobStatus) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func transitionError(kind, id string, current, next JobStatus) error {
	return fmt.Errorf("%s (ID: %s): invalid state transition %s -> %s", kind, id, current, next)
}

// Exit codes shared by jobs and steps.
const (
	ExitCodeExecuting = "EXECUTING"
	ExitCodeCompleted = "COMPLETED"
	ExitCodeNoOp      = "NOOP"
	ExitCodeStopped   = "STOPPED"
	ExitCodeFailed    = "FAILED"
	ExitCodeUnknown   = "UNKNOWN"
)

// ExitStatus is the terminal descriptor attached to a job or step outcome.
type ExitStatus struct {
	ExitCode        string
	ExitDescription string
}

var (
	ExitStatusExecuting = ExitStatus{ExitCode: ExitCodeExecuting}
	ExitStatusCompleted = ExitStatus{ExitCode: ExitCodeCompleted}
	ExitStatusNoOp      = ExitStatus{ExitCode: ExitCodeNoOp}
	ExitStatusStopped   = ExitStatus{ExitCode: ExitCodeStopped}
	ExitStatusFailed    = ExitStatus{ExitCode: ExitCodeFailed}
	ExitStatusUnknown   = ExitStatus{ExitCode: ExitCodeUnknown}
)

// NewExitStatus creates an ExitStatus with a custom code.
func NewExitStatus(code, description string) ExitStatus {
	return ExitStatus{ExitCode: code, ExitDescription: description}
}

func (e ExitStatus) severity() int {
	switch e.ExitCode {
	case ExitCodeExecuting:
		return 1
	case ExitCodeCompleted:
		return 2
	case ExitCodeNoOp:
		return 3
	case ExitCodeStopped:
		return 4
	case ExitCodeFailed:
		return 5
	case ExitCodeUnknown:
		return 6
	default:
		return 7
	}
}

// And combines two exit statuses, keeping the more severe code and joining descriptions.
func (e ExitStatus) And(other ExitStatus) ExitStatus {
	out := e
	if other.severity() > e.severity() {
		out.ExitCode = other.ExitCode
	}
	return out.AddExitDescription(other.ExitDescription)
}

// AddExitDescription appends description, separated by "; ".
func (e ExitStatus) AddExitDescription(description string) ExitStatus {
	description = strings.TrimSpace(description)
	if description == "" || strings.Contains(e.ExitDescription, description) {
		return e
	}
	if e.ExitDescription == "" {
		e.ExitDescription = description
	} else {
		e.ExitDescription = e.ExitDescription + "; " + description
	}
	return e
}

// Is reports whether e carries code.
func (e ExitStatus) Is(code string) bool { return e.ExitCode == code }

// IsRunning reports whether the status is EXECUTING or UNKNOWN.
func (e ExitStatus) IsRunning() bool {
	return e.ExitCode == ExitCodeExecuting || e.ExitCode == ExitCodeUnknown
}

func (e ExitStatus) String() string {
	if e.ExitDescription == "" {
		return e.ExitCode
	}
	return fmt.Sprintf("%s (%s)", e.ExitCode, e.ExitDescription)
}
