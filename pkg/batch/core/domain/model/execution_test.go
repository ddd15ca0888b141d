package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobExecution(t *testing.T) *JobExecution {
	t.Helper()
	inst, err := NewJobInstance("testJob", NewJobParameters().PutString("k", "v"))
	require.NoError(t, err)
	return NewJobExecution(inst, inst.Parameters)
}

func TestJobExecution_HappyPathTransitions(t *testing.T) {
	je := newTestJobExecution(t)
	assert.Equal(t, BatchStatusStarting, je.Status)

	je.MarkAsStarted()
	assert.Equal(t, BatchStatusStarted, je.Status)
	assert.Equal(t, ExitCodeExecuting, je.ExitStatus.ExitCode)

	je.MarkAsCompleted()
	assert.Equal(t, BatchStatusCompleted, je.Status)
	assert.Equal(t, ExitCodeCompleted, je.ExitStatus.ExitCode)
	assert.NotNil(t, je.EndTime)
	assert.True(t, je.Status.IsFinished())
}

func TestJobExecution_StopSequence(t *testing.T) {
	je := newTestJobExecution(t)
	je.MarkAsStarted()
	je.MarkAsStopping()
	assert.Equal(t, BatchStatusStopping, je.Status)
	je.MarkAsStopped()
	assert.Equal(t, BatchStatusStopped, je.Status)
	assert.Equal(t, ExitCodeStopped, je.ExitStatus.ExitCode)
}

func TestJobExecution_InvalidTransitionRejected(t *testing.T) {
	je := newTestJobExecution(t)
	je.MarkAsStarted()
	je.MarkAsCompleted()

	err := je.TransitionTo(BatchStatusStarted)
	assert.Error(t, err)
	assert.Equal(t, BatchStatusCompleted, je.Status)

	assert.NoError(t, je.TransitionTo(BatchStatusCompleted), "same-state transition is a no-op")
}

func TestJobExecution_MarkAsFailedRecordsFailure(t *testing.T) {
	je := newTestJobExecution(t)
	je.MarkAsStarted()
	cause := errors.New("step 'load' failed")
	je.MarkAsFailed(cause)
	je.AddFailure(cause)

	assert.Equal(t, BatchStatusFailed, je.Status)
	assert.Equal(t, FailureList{"step 'load' failed"}, je.Failures)
	assert.Contains(t, je.ExitStatus.ExitDescription, "load")
	assert.Len(t, je.FailureErrors(), 1)
}

func TestJobExecution_StepExecutionsLinked(t *testing.T) {
	je := newTestJobExecution(t)
	se := NewStepExecution("load", nil)
	je.AddStepExecution(se)

	assert.Equal(t, je.ID, se.JobExecutionID)
	assert.Same(t, je, se.JobExecution)
	found, ok := je.FindStepExecution("load")
	assert.True(t, ok)
	assert.Same(t, se, found)
	assert.Equal(t, "v", se.JobParameters().GetString("k"))
}

func TestStepExecution_FailureAndSummary(t *testing.T) {
	se := NewStepExecution("load", nil)
	se.MarkAsStarted()
	se.ReadCount, se.WriteCount, se.CommitCount = 12, 12, 3
	se.MarkAsFailed(errors.New("writer broke"))

	assert.Equal(t, BatchStatusFailed, se.Status)
	assert.ErrorContains(t, se.Err(), "writer broke")
	assert.Contains(t, se.Summary(), "read=12")
}

func TestJobStatus_UpgradeAndOrdering(t *testing.T) {
	assert.Equal(t, BatchStatusFailed, BatchStatusCompleted.Upgrade(BatchStatusFailed))
	assert.Equal(t, BatchStatusFailed, BatchStatusFailed.Upgrade(BatchStatusStopped))
	assert.Equal(t, BatchStatusStopped, BatchStatusCompleted.Upgrade(BatchStatusStopped))
	assert.True(t, BatchStatusFailed.IsUnsuccessful())
	assert.False(t, BatchStatusStopped.IsUnsuccessful())
	assert.Equal(t, BatchStatusUnknown, ParseJobStatus("bogus"))
	assert.Equal(t, BatchStatusStopped, ParseJobStatus("stopped"))
}

func TestExitStatus_And(t *testing.T) {
	got := ExitStatusCompleted.And(ExitStatusFailed.AddExitDescription("partition1"))
	assert.Equal(t, ExitCodeFailed, got.ExitCode)
	assert.Equal(t, "partition1", got.ExitDescription)

	got = ExitStatusFailed.And(ExitStatusStopped)
	assert.Equal(t, ExitCodeFailed, got.ExitCode)

	custom := NewExitStatus("SKIP_REST", "")
	assert.Equal(t, "SKIP_REST", ExitStatusFailed.And(custom).ExitCode)
	assert.Equal(t, "a; b", ExitStatusCompleted.AddExitDescription("a").AddExitDescription("b").ExitDescription)
}

func TestExecutionContext_Accessors(t *testing.T) {
	ec := NewExecutionContext()
	ec.Put("count", 5)
	ec.Put("name", "partition0")
	ec.Put("done", true)

	copied := ec.Copy()
	n, ok := copied.GetInt("count")
	assert.True(t, ok, "float64 from JSON copy is accepted")
	assert.Equal(t, 5, n)

	ec.Put("count", 6)
	n, _ = copied.GetInt("count")
	assert.Equal(t, 5, n, "copy is independent")

	s, _ := ec.GetString("name")
	assert.Equal(t, "partition0", s)
	b, _ := ec.GetBool("done")
	assert.True(t, b)

	merged := NewExecutionContext()
	merged.Merge("partition0", ec)
	assert.True(t, merged.ContainsKey("partition0.count"))

	v, err := ec.Value()
	require.NoError(t, err)
	var back ExecutionContext
	require.NoError(t, back.Scan(v))
	assert.Equal(t, []string{"count", "done", "name"}, back.Keys())
}

func TestPartitionName(t *testing.T) {
	assert.Equal(t, "partition3", PartitionName(3))
}
