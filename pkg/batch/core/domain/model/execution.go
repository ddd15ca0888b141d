// Package model holds the batch domain: job parameters, instances, executions, their
// lifecycle state machine and execution contexts.
package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// PartitionName returns the conventional name of partition index.
func PartitionName(index int) string {
	return fmt.Sprintf("partition%d", index)
}

// JobInstance is the logical identity of a job run: job name plus identifying parameters.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance creates a JobInstance for jobName and params.
func NewJobInstance(jobName string, params JobParameters) (*JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		ParametersHash: hash,
		CreateTime:     time.Now(),
	}, nil
}

// JobExecution is one attempt to run a JobInstance.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	Status           JobStatus
	ExitStatus       ExitStatus
	StartTime        time.Time
	EndTime          *time.Time
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext ExecutionContext
	Failures         FailureList
	CurrentStepName  string
	Version          int

	mu             sync.RWMutex
	stepExecutions []*StepExecution
	failureErrors  []error
}

// NewJobExecution creates a STARTING execution of instance.
func NewJobExecution(instance *JobInstance, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    instance.ID,
		JobName:          instance.JobName,
		Parameters:       params,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		ExecutionContext: NewExecutionContext(),
		Failures:         FailureList{},
	}
}

// StepExecutions returns a snapshot of the step executions in creation order.
func (je *JobExecution) StepExecutions() []*StepExecution {
	je.mu.RLock()
	defer je.mu.RUnlock()
	out := make([]*StepExecution, len(je.stepExecutions))
	copy(out, je.stepExecutions)
	return out
}

// AddStepExecution appends se and links it back to je.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.mu.Lock()
	defer je.mu.Unlock()
	se.JobExecution = je
	se.JobExecutionID = je.ID
	je.stepExecutions = append(je.stepExecutions, se)
}

// SetStepExecutions replaces the step list; repositories use it when loading.
func (je *JobExecution) SetStepExecutions(steps []*StepExecution) {
	je.mu.Lock()
	defer je.mu.Unlock()
	for _, se := range steps {
		se.JobExecution = je
	}
	je.stepExecutions = steps
}

// FindStepExecution returns the latest step execution named stepName.
func (je *JobExecution) FindStepExecution(stepName string) (*StepExecution, bool) {
	je.mu.RLock()
	defer je.mu.RUnlock()
	for i := len(je.stepExecutions) - 1; i >= 0; i-- {
		if je.stepExecutions[i].StepName == stepName {
			return je.stepExecutions[i], true
		}
	}
	return nil, false
}

// AddFailure records err once.
func (je *JobExecution) AddFailure(err error) {
	if err == nil {
		return
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	msg := exception.ExtractErrorMessage(err)
	for _, f := range je.Failures {
		if f == msg {
			return
		}
	}
	je.Failures = append(je.Failures, msg)
	je.failureErrors = append(je.failureErrors, err)
}

// FailureErrors returns the errors recorded in this process (not persisted).
func (je *JobExecution) FailureErrors() []error {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return append([]error(nil), je.failureErrors...)
}

// TransitionTo moves je to status, rejecting illegal transitions.
func (je *JobExecution) TransitionTo(status JobStatus) error {
	if je.Status == status {
		return nil
	}
	if !CanTransition(je.Status, status) {
		return transitionError("JobExecution", je.ID, je.Status, status)
	}
	je.Status = status
	je.LastUpdated = time.Now()
	return nil
}

func (je *JobExecution) force(status JobStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("%v; forcing status", err)
		je.Status = status
		je.LastUpdated = time.Now()
	}
}

func (je *JobExecution) finish(status JobStatus, exit ExitStatus) {
	je.force(status)
	now := time.Now()
	je.EndTime = &now
	je.ExitStatus = exit
}

// MarkAsStarted moves je to STARTED.
func (je *JobExecution) MarkAsStarted() {
	je.force(BatchStatusStarted)
	je.StartTime = time.Now()
	je.ExitStatus = ExitStatusExecuting
}

// MarkAsCompleted moves je to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted, je.terminalExit(ExitStatusCompleted))
}

// MarkAsFailed moves je to FAILED, recording err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.AddFailure(err)
	exit := je.terminalExit(ExitStatusFailed)
	if err != nil {
		exit = exit.AddExitDescription(err.Error())
	}
	je.finish(BatchStatusFailed, exit)
}

// MarkAsStopping records a stop request.
func (je *JobExecution) MarkAsStopping() {
	if je.Status == BatchStatusStarted {
		je.force(BatchStatusStopping)
	}
}

// MarkAsStopped moves je to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped, je.terminalExit(ExitStatusStopped))
}

// MarkAsAbandoned moves je to ABANDONED.
func (je *JobExecution) MarkAsAbandoned() {
	je.force(BatchStatusAbandoned)
	je.ExitStatus = je.ExitStatus.And(NewExitStatus(BatchStatusAbandoned.String(), ""))
	je.LastUpdated = time.Now()
}

// terminalExit keeps a custom exit code set during the run and otherwise uses base.
func (je *JobExecution) terminalExit(base ExitStatus) ExitStatus {
	if je.ExitStatus.IsRunning() || je.ExitStatus.ExitCode == "" {
		return base
	}
	return je.ExitStatus.And(base)
}

// Duration returns the wall time of the execution so far.
func (je *JobExecution) Duration() time.Duration {
	if je.StartTime.IsZero() {
		return 0
	}
	if je.EndTime != nil {
		return je.EndTime.Sub(je.StartTime)
	}
	return time.Since(je.StartTime)
}

// StepExecution is one attempt to run one step (or one partition of it).
type StepExecution struct {
	ID               string
	StepName         string
	JobExecutionID   string
	JobExecution     *JobExecution
	Status           JobStatus
	ExitStatus       ExitStatus
	StartTime        time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ReadSkipCount    int
	ProcessSkipCount int
	WriteSkipCount   int
	ExecutionContext ExecutionContext
	Failures         FailureList
	Version          int

	failureErrors []error
}

// NewStepExecution creates a STARTING step execution for stepName within je. It is not
// attached to je; owners call JobExecution.AddStepExecution.
func NewStepExecution(stepName string, je *JobExecution) *StepExecution {
	se := &StepExecution{
		ID:               NewID(),
		StepName:         stepName,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusExecuting,
		LastUpdated:      time.Now(),
		ExecutionContext: NewExecutionContext(),
		Failures:         FailureList{},
	}
	if je != nil {
		se.JobExecution = je
		se.JobExecutionID = je.ID
	}
	return se
}

// JobParameters returns the parameters of the owning job execution.
func (se *StepExecution) JobParameters() JobParameters {
	if se.JobExecution == nil {
		return NewJobParameters()
	}
	return se.JobExecution.Parameters
}

// TransitionTo moves se to status, rejecting illegal transitions.
func (se *StepExecution) TransitionTo(status JobStatus) error {
	if se.Status == status {
		return nil
	}
	if !CanTransition(se.Status, status) {
		return transitionError("StepExecution", se.ID, se.Status, status)
	}
	se.Status = status
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) force(status JobStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("%v; forcing status", err)
		se.Status = status
		se.LastUpdated = time.Now()
	}
}

func (se *StepExecution) finish(status JobStatus, exit ExitStatus) {
	se.force(status)
	now := time.Now()
	se.EndTime = &now
	if se.ExitStatus.IsRunning() {
		se.ExitStatus = exit
	} else {
		se.ExitStatus = se.ExitStatus.And(exit)
	}
}

// MarkAsStarted moves se to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.force(BatchStatusStarted)
	se.StartTime = time.Now()
	se.ExitStatus = ExitStatusExecuting
}

// MarkAsCompleted moves se to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed moves se to FAILED, recording err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.AddFailure(err)
	exit := ExitStatusFailed
	if err != nil {
		exit = exit.AddExitDescription(err.Error())
	}
	se.finish(BatchStatusFailed, exit)
}

// MarkAsStopped moves se to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

// AddFailure records err once.
func (se *StepExecution) AddFailure(err error) {
	if err == nil {
		return
	}
	msg := exception.ExtractErrorMessage(err)
	for _, f := range se.Failures {
		if f == msg {
			return
		}
	}
	se.Failures = append(se.Failures, msg)
	se.failureErrors = append(se.failureErrors, err)
}

// FailureErrors returns the errors recorded in this process.
func (se *StepExecution) FailureErrors() []error {
	return append([]error(nil), se.failureErrors...)
}

// Err joins the recorded failures, or returns nil.
func (se *StepExecution) Err() error {
	if len(se.failureErrors) > 0 {
		return errors.Join(se.failureErrors...)
	}
	if len(se.Failures) > 0 {
		return errors.New(strings.Join(se.Failures, "; "))
	}
	return nil
}

// SkipCount returns the total of read, process and write skips.
func (se *StepExecution) SkipCount() int {
	return se.ReadSkipCount + se.ProcessSkipCount + se.WriteSkipCount
}

// Summary renders the counters for logs and exit descriptions.
func (se *StepExecution) Summary() string {
	return fmt.Sprintf("StepExecution[name=%s, status=%s, exitStatus=%s, read=%d, write=%d, filter=%d, commit=%d, rollback=%d, skip=%d]",
		se.StepName, se.Status, se.ExitStatus.ExitCode, se.ReadCount, se.WriteCount, se.FilterCount, se.CommitCount, se.RollbackCount, se.SkipCount())
}
