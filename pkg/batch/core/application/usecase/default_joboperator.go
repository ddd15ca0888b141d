package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// DefaultJobOperator operates on executions through the launcher that runs them.
type DefaultJobOperator struct {
	repository repository.JobRepository
	registry   JobRegistry
	launcher   *SimpleJobLauncher
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a DefaultJobOperator.
func NewDefaultJobOperator(repo repository.JobRepository, registry JobRegistry, launcher *SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{repository: repo, registry: registry, launcher: launcher}
}

// Stop implements JobOperator. A live execution is only signalled; its own goroutine
// moves it through STOPPING to STOPPED. An execution left running by a dead process has
// no owner, so it is marked STOPPING here.
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	je, err := o.load(ctx, executionID, "stop")
	if err != nil {
		return err
	}
	if je.Status.IsFinished() {
		return exception.NewBatchErrorf("job_operator", "execution %s is already %s", executionID, je.Status)
	}
	if o.launcher.cancel(executionID) {
		logger.Infof("Stop requested for execution %s of job '%s'.", executionID, je.JobName)
		return nil
	}

	logger.Warnf("Execution %s is %s but not running in this process; marking it STOPPING.", executionID, je.Status)
	je.MarkAsStopping()
	if je.Status != model.BatchStatusStopping {
		je.Status = model.BatchStatusStopping
	}
	if err := o.repository.UpdateJobExecution(ctx, je); err != nil {
		return exception.NewBatchError("job_operator", "failed to mark execution as STOPPING", err, false, false)
	}
	return nil
}

// Abandon implements JobOperator.
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) error {
	je, err := o.load(ctx, executionID, "abandon")
	if err != nil {
		return err
	}
	switch {
	case je.Status == model.BatchStatusAbandoned:
		return nil
	case je.Status == model.BatchStatusCompleted:
		return exception.NewBatchErrorf("job_operator", "execution %s is COMPLETED and cannot be abandoned", executionID)
	case je.Status.IsRunning() && o.isLive(executionID):
		return exception.NewBatchErrorf("job_operator", "execution %s is still %s; stop it first", executionID, je.Status)
	}

	je.MarkAsAbandoned()
	if err := o.repository.UpdateJobExecution(ctx, je); err != nil {
		return exception.NewBatchError("job_operator", "failed to mark execution as ABANDONED", err, false, false)
	}
	logger.Infof("Abandoned execution %s of job '%s'.", executionID, je.JobName)
	return nil
}

// Restart implements JobOperator. Only the latest execution of its JobInstance can be
// restarted, and only from FAILED or STOPPED.
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	prev, err := o.load(ctx, executionID, "restart")
	if err != nil {
		return nil, err
	}
	if prev.Status != model.BatchStatusFailed && prev.Status != model.BatchStatusStopped {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrJobRestart, executionID, prev.Status)
	}

	instance, err := o.repository.FindJobInstanceByID(ctx, prev.JobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", "failed to load job instance", err, false, false)
	}
	executions, err := o.repository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", "failed to load job executions", err, false, false)
	}
	if len(executions) > 0 && executions[0].ID != prev.ID {
		return nil, fmt.Errorf("%w: execution %s is not the latest of its instance (latest is %s)", ErrJobRestart, executionID, executions[0].ID)
	}

	job, err := o.registry.GetJob(prev.JobName)
	if err != nil {
		return nil, err
	}
	if err := validate(job, instance.Parameters); err != nil {
		return nil, err
	}
	logger.Infof("Restarting job '%s' from execution %s.", prev.JobName, executionID)
	return o.launcher.run(ctx, job, instance, instance.Parameters)
}

func (o *DefaultJobOperator) load(ctx context.Context, executionID, op string) (*model.JobExecution, error) {
	je, err := o.repository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("cannot %s execution %s", op, executionID), err, false, false)
	}
	return je, nil
}

func (o *DefaultJobOperator) isLive(executionID string) bool {
	for _, id := range o.launcher.RunningExecutionIDs() {
		if id == executionID {
			return true
		}
	}
	return false
}
