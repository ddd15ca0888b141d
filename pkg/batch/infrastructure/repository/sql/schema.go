package sql

import (
	"time"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// JobInstanceEntity is the row of batch_job_instance.
type JobInstanceEntity struct {
	ID             string              `gorm:"column:id;primaryKey"`
	JobName        string              `gorm:"column:job_name"`
	Parameters     model.JobParameters `gorm:"column:parameters"`
	ParametersHash string              `gorm:"column:parameters_hash"`
	CreateTime     time.Time           `gorm:"column:create_time"`
	Version        int                 `gorm:"column:version"`
}

func (JobInstanceEntity) TableName() string { return "batch_job_instance" }

// JobExecutionEntity is the row of batch_job_execution.
type JobExecutionEntity struct {
	ID               string                 `gorm:"column:id;primaryKey"`
	JobInstanceID    string                 `gorm:"column:job_instance_id"`
	JobName          string                 `gorm:"column:job_name"`
	Parameters       model.JobParameters    `gorm:"column:parameters"`
	Status           string                 `gorm:"column:status"`
	ExitCode         string                 `gorm:"column:exit_code"`
	ExitDescription  string                 `gorm:"column:exit_description"`
	StartTime        *time.Time             `gorm:"column:start_time"`
	EndTime          *time.Time             `gorm:"column:end_time"`
	CreateTime       time.Time              `gorm:"column:create_time"`
	LastUpdated      time.Time              `gorm:"column:last_updated"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context"`
	Failures         model.FailureList      `gorm:"column:failures"`
	CurrentStepName  string                 `gorm:"column:current_step_name"`
	Version          int                    `gorm:"column:version"`
}

func (JobExecutionEntity) TableName() string { return "batch_job_execution" }

// StepExecutionEntity is the row of batch_step_execution.
type StepExecutionEntity struct {
	ID               string                 `gorm:"column:id;primaryKey"`
	StepName         string                 `gorm:"column:step_name"`
	JobExecutionID   string                 `gorm:"column:job_execution_id"`
	Status           string                 `gorm:"column:status"`
	ExitCode         string                 `gorm:"column:exit_code"`
	ExitDescription  string                 `gorm:"column:exit_description"`
	StartTime        *time.Time             `gorm:"column:start_time"`
	EndTime          *time.Time             `gorm:"column:end_time"`
	CreateTime       time.Time              `gorm:"column:create_time"`
	LastUpdated      time.Time              `gorm:"column:last_updated"`
	ReadCount        int                    `gorm:"column:read_count"`
	WriteCount       int                    `gorm:"column:write_count"`
	CommitCount      int                    `gorm:"column:commit_count"`
	RollbackCount    int                    `gorm:"column:rollback_count"`
	FilterCount      int                    `gorm:"column:filter_count"`
	ReadSkipCount    int                    `gorm:"column:read_skip_count"`
	ProcessSkipCount int                    `gorm:"column:process_skip_count"`
	WriteSkipCount   int                    `gorm:"column:write_skip_count"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context"`
	Failures         model.FailureList      `gorm:"column:failures"`
	Version          int                    `gorm:"column:version"`
}

func (StepExecutionEntity) TableName() string { return "batch_step_execution" }

// ExecutionContextEntity is one key of a scoped execution context.
type ExecutionContextEntity struct {
	ScopeKind   string    `gorm:"column:scope_kind;primaryKey"`
	ExecutionID string    `gorm:"column:execution_id;primaryKey"`
	EntryKey    string    `gorm:"column:entry_key;primaryKey"`
	EntryValue  string    `gorm:"column:entry_value"`
	LastUpdated time.Time `gorm:"column:last_updated"`
}

func (ExecutionContextEntity) TableName() string { return "batch_execution_context" }
