package exception

import (
	"errors"
	"fmt"
)

// ErrJobAborted marks an execution that ended because of a stop request.
var ErrJobAborted = errors.New("job aborted")

// ValidationError reports a bad or missing job parameter. It is raised before any
// execution is created.
type ValidationError struct {
	Parameter string
	Reason    string
	Err       error
}

// NewValidationError creates a ValidationError.
func NewValidationError(parameter, reason string, cause error) *ValidationError {
	return &ValidationError{Parameter: parameter, Reason: reason, Err: cause}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid job parameter '%s': %s: %v", e.Parameter, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid job parameter '%s': %s", e.Parameter, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Phase identifies the chunk stage in which an item failed.
type Phase string

const (
	PhaseRead    Phase = "read"
	PhaseProcess Phase = "process"
	PhaseWrite   Phase = "write"
	PhaseCommit  Phase = "commit"
)

// ChunkProcessingError is raised when a chunk fails. ReadCount and WriteCount are the
// step totals committed before the failing chunk.
type ChunkProcessingError struct {
	Step       string
	Phase      Phase
	Chunk      int
	ReadCount  int
	WriteCount int
	Err        error
}

func (e *ChunkProcessingError) Error() string {
	return fmt.Sprintf("step '%s' failed in %s of chunk %d (read=%d, written=%d): %v",
		e.Step, e.Phase, e.Chunk, e.ReadCount, e.WriteCount, e.Err)
}

func (e *ChunkProcessingError) Unwrap() error { return e.Err }

// PartitionFailure records one failed partition of a partitioned step. Sibling partitions
// are unaffected.
type PartitionFailure struct {
	Step       string
	Partition  string
	ReadCount  int
	WriteCount int
	Err        error
}

func (e *PartitionFailure) Error() string {
	return fmt.Sprintf("partition '%s' of step '%s' failed (read=%d, written=%d): %v",
		e.Partition, e.Step, e.ReadCount, e.WriteCount, e.Err)
}

func (e *PartitionFailure) Unwrap() error { return e.Err }

// JobAbortError reports that a job was stopped on request. It is distinct from failure.
type JobAbortError struct {
	JobName     string
	ExecutionID string
	Err         error
}

func (e *JobAbortError) Error() string {
	return fmt.Sprintf("job '%s' (execution %s) stopped: %v", e.JobName, e.ExecutionID, e.Err)
}

// Unwrap returns both ErrJobAborted and the cause so errors.Is matches either.
func (e *JobAbortError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrJobAborted}
	}
	return []error{ErrJobAborted, e.Err}
}

// IsValidationError reports whether err's chain contains a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
