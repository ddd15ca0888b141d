package usecase

import (
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// Process exit codes.
const (
	ExitCodeCompleted = 0
	ExitCodeFailed    = 1
	ExitCodeLaunch    = 2
	ExitCodeStopped   = 3
	ExitCodeOther     = 4
)

// ExitCode maps a final batch status to a process exit code.
func ExitCode(status model.JobStatus) int {
	switch status {
	case model.BatchStatusCompleted:
		return ExitCodeCompleted
	case model.BatchStatusFailed:
		return ExitCodeFailed
	case model.BatchStatusStopped:
		return ExitCodeStopped
	default:
		return ExitCodeOther
	}
}

// ExitCodeFor maps the result of Launch: any launch error, validation included, is
// ExitCodeLaunch.
func ExitCodeFor(je *model.JobExecution, launchErr error) int {
	if launchErr != nil || je == nil {
		return ExitCodeLaunch
	}
	return ExitCode(je.Status)
}
