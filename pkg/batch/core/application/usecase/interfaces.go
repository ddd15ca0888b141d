package usecase

import (
	"context"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// JobLauncher starts jobs by name.
type JobLauncher interface {
	// Launch runs the named job to completion in the caller's goroutine. The returned error
	// reports a launch failure, such as unknown job or invalid parameters; the outcome of
	// the run itself is the returned JobExecution's status.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator controls executions after launch.
type JobOperator interface {
	// Stop requests a running execution to stop. The execution reaches STOPPED once its
	// current chunk commits.
	Stop(ctx context.Context, executionID string) error
	// Abandon marks a stopped or failed execution as never to be restarted.
	Abandon(ctx context.Context, executionID string) error
	// Restart runs the JobInstance of a FAILED or STOPPED execution again. Steps that
	// completed in earlier runs are skipped.
	Restart(ctx context.Context, executionID string) (*model.JobExecution, error)
}

// JobExplorer reads batch metadata.
type JobExplorer interface {
	GetJobNames(ctx context.Context) ([]string, error)
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)
	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)
	// GetLastJobInstance returns the newest instance of jobName, or nil when there is none.
	GetLastJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error)
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}

// JobRegistry resolves job names to runnable jobs.
type JobRegistry interface {
	GetJob(name string) (port.Job, error)
	JobNames() []string
}
