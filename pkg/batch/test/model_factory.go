package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
)

// NewTestJobExecution creates and saves an instance and a STARTED execution of jobName.
func NewTestJobExecution(t *testing.T, repo repository.JobRepository, jobName string, params model.JobParameters) *model.JobExecution {
	t.Helper()
	ctx := context.Background()
	instance, err := model.NewJobInstance(jobName, params)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(ctx, instance))
	je := model.NewJobExecution(instance, params)
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	return je
}

// NewTestStepExecution creates and saves a step execution of je.
func NewTestStepExecution(t *testing.T, repo repository.JobRepository, je *model.JobExecution, stepName string) *model.StepExecution {
	t.Helper()
	se := model.NewStepExecution(stepName, je)
	require.NoError(t, repo.SaveStepExecution(context.Background(), se))
	return se
}
