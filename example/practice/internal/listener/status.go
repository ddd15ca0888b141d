// Package listener holds the listeners of advancedJob.
package listener

import (
	"context"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// JobStatusListener logs the job status before the run and raises an alert in the log
// when the job failed.
type JobStatusListener struct{}

// BeforeJob implements port.JobExecutionListener.
func (JobStatusListener) BeforeJob(_ context.Context, je *model.JobExecution) error {
	logger.Infof("[beforeJob] job execution %s is %s.", je.ID, je.Status)
	return nil
}

// AfterJob implements port.JobExecutionListener.
func (JobStatusListener) AfterJob(_ context.Context, je *model.JobExecution) error {
	if je.Status == model.BatchStatusFailed {
		logger.Errorf("[afterJob] job execution %s FAILED: recover as soon as possible.", je.ID)
	}
	return nil
}

// StepStatusListener logs the step status on start and end and keeps its exit status.
type StepStatusListener struct{}

// BeforeStep implements port.StepExecutionListener.
func (StepStatusListener) BeforeStep(_ context.Context, se *model.StepExecution) error {
	logger.Infof("[beforeStep] step '%s' is %s.", se.StepName, se.Status)
	return nil
}

// AfterStep implements port.StepExecutionListener.
func (StepStatusListener) AfterStep(_ context.Context, se *model.StepExecution) *model.ExitStatus {
	logger.Infof("[afterStep] step '%s' is %s.", se.StepName, se.Status)
	return nil
}

var (
	_ port.JobExecutionListener  = JobStatusListener{}
	_ port.StepExecutionListener = StepStatusListener{}
)
