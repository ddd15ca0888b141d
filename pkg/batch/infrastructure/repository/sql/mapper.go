package sql

import (
	"time"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     ji.Parameters,
		ParametersHash: ji.ParametersHash,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
	}
}

func toDomainJobInstance(e *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:             e.ID,
		JobName:        e.JobName,
		Parameters:     e.Parameters,
		ParametersHash: e.ParametersHash,
		CreateTime:     e.CreateTime,
		Version:        e.Version,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		Status:           je.Status.String(),
		ExitCode:         je.ExitStatus.ExitCode,
		ExitDescription:  je.ExitStatus.ExitDescription,
		StartTime:        timePtr(je.StartTime),
		EndTime:          je.EndTime,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext,
		Failures:         je.Failures,
		CurrentStepName:  je.CurrentStepName,
		Version:          je.Version,
	}
}

func toDomainJobExecution(e *JobExecutionEntity) *model.JobExecution {
	return &model.JobExecution{
		ID:               e.ID,
		JobInstanceID:    e.JobInstanceID,
		JobName:          e.JobName,
		Parameters:       e.Parameters,
		Status:           model.ParseJobStatus(e.Status),
		ExitStatus:       model.NewExitStatus(e.ExitCode, e.ExitDescription),
		StartTime:        timeVal(e.StartTime),
		EndTime:          e.EndTime,
		CreateTime:       e.CreateTime,
		LastUpdated:      e.LastUpdated,
		ExecutionContext: e.ExecutionContext,
		Failures:         e.Failures,
		CurrentStepName:  e.CurrentStepName,
		Version:          e.Version,
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		Status:           se.Status.String(),
		ExitCode:         se.ExitStatus.ExitCode,
		ExitDescription:  se.ExitStatus.ExitDescription,
		StartTime:        timePtr(se.StartTime),
		EndTime:          se.EndTime,
		LastUpdated:      se.LastUpdated,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		FilterCount:      se.FilterCount,
		ReadSkipCount:    se.ReadSkipCount,
		ProcessSkipCount: se.ProcessSkipCount,
		WriteSkipCount:   se.WriteSkipCount,
		ExecutionContext: se.ExecutionContext,
		Failures:         se.Failures,
		Version:          se.Version,
	}
}

func toDomainStepExecution(e *StepExecutionEntity) *model.StepExecution {
	return &model.StepExecution{
		ID:               e.ID,
		StepName:         e.StepName,
		JobExecutionID:   e.JobExecutionID,
		Status:           model.ParseJobStatus(e.Status),
		ExitStatus:       model.NewExitStatus(e.ExitCode, e.ExitDescription),
		StartTime:        timeVal(e.StartTime),
		EndTime:          e.EndTime,
		LastUpdated:      e.LastUpdated,
		ReadCount:        e.ReadCount,
		WriteCount:       e.WriteCount,
		CommitCount:      e.CommitCount,
		RollbackCount:    e.RollbackCount,
		FilterCount:      e.FilterCount,
		ReadSkipCount:    e.ReadSkipCount,
		ProcessSkipCount: e.ProcessSkipCount,
		WriteSkipCount:   e.WriteSkipCount,
		ExecutionContext: e.ExecutionContext,
		Failures:         e.Failures,
		Version:          e.Version,
	}
}
