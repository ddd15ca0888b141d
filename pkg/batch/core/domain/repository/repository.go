// Package repository defines persistence of batch metadata: job instances, job
// executions and step executions.
package repository

import (
	"context"
	"errors"

	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

var (
	// ErrJobInstanceNotFound is returned when no JobInstance matches.
	ErrJobInstanceNotFound = errors.New("job instance not found")
	// ErrJobExecutionNotFound is returned when no JobExecution matches.
	ErrJobExecutionNotFound = errors.New("job execution not found")
	// ErrStepExecutionNotFound is returned when no StepExecution matches.
	ErrStepExecutionNotFound = errors.New("step execution not found")
	// ErrJobInstanceAlreadyExists is returned when saving a duplicate (name, parameters) pair.
	ErrJobInstanceAlreadyExists = errors.New("job instance already exists")
)

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
	exception.RegisterErrorType("ErrJobInstanceAlreadyExists", ErrJobInstanceAlreadyExists)
}

// JobInstance persists job instances.
type JobInstance interface {
	// SaveJobInstance stores a new instance. A duplicate (name, parameters) pair fails with
	// ErrJobInstanceAlreadyExists.
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error
	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)
	// FindJobInstanceByJobNameAndParameters finds the instance identified by name and params.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)
	// FindLatestJobInstance returns the most recently created instance of jobName.
	FindLatestJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error)
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)
	GetJobNames(ctx context.Context) ([]string, error)
}

// JobExecution persists job executions.
type JobExecution interface {
	SaveJobExecution(ctx context.Context, je *model.JobExecution) error
	// UpdateJobExecution stores je, failing with an optimistic locking error when the
	// stored version moved on.
	UpdateJobExecution(ctx context.Context, je *model.JobExecution) error
	// FindJobExecutionByID loads je with its step executions.
	FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error)
	// FindJobExecutionsByJobInstance returns executions newest first.
	FindJobExecutionsByJobInstance(ctx context.Context, instance *model.JobInstance) ([]*model.JobExecution, error)
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}

// StepExecution persists step executions.
type StepExecution interface {
	SaveStepExecution(ctx context.Context, se *model.StepExecution) error
	// UpdateStepExecution stores se; the chunk engine calls it at every commit.
	UpdateStepExecution(ctx context.Context, se *model.StepExecution) error
	FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error)
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error)
}

// JobRepository is the full metadata store. It also provides the scoped
// execution-context store.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution
	port.ExecutionContextStore

	// Close releases resources such as database connections.
	Close() error
}
