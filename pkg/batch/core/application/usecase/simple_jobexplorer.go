package usecase

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
)

// SimpleJobExplorer reads metadata straight from the JobRepository.
type SimpleJobExplorer struct {
	repository repository.JobRepository
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a SimpleJobExplorer.
func NewSimpleJobExplorer(repo repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{repository: repo}
}

func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	return e.repository.GetJobNames(ctx)
}

func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	return e.repository.FindJobExecutionByID(ctx, executionID)
}

func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	instance, err := e.repository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return e.repository.FindJobExecutionsByJobInstance(ctx, instance)
}

func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	return e.repository.FindJobInstanceByID(ctx, instanceID)
}

func (e *SimpleJobExplorer) GetLastJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error) {
	instance, err := e.repository.FindLatestJobInstance(ctx, jobName)
	if errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, nil
	}
	return instance, err
}

func (e *SimpleJobExplorer) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	return e.repository.FindRunningJobExecutions(ctx, jobName)
}
