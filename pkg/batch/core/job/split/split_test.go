package split

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/worker"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

// branch is a flow that reports one StepExecution with the given status.
type branch struct {
	name   string
	status model.JobStatus
	err    error
	exit   *model.ExitStatus
	delay  time.Duration
	ran    *int32
}

func (b *branch) FlowName() string { return b.name }

func (b *branch) Execute(ctx context.Context, je *model.JobExecution) (*port.FlowExecution, error) {
	if b.ran != nil {
		atomic.AddInt32(b.ran, 1)
	}
	time.Sleep(b.delay)
	se := model.NewStepExecution(b.name+"Step", je)
	se.Status = b.status
	exit := b.status.ToExitStatus()
	if b.exit != nil {
		exit = *b.exit
	}
	return &port.FlowExecution{
		Status:         b.status,
		ExitStatus:     exit,
		StepExecutions: []*model.StepExecution{se},
	}, b.err
}

func newJobExecution(t *testing.T) *model.JobExecution {
	instance, err := model.NewJobInstance("splitJob", model.NewJobParameters())
	require.NoError(t, err)
	return model.NewJobExecution(instance, model.NewJobParameters())
}

func TestSplit_AllBranchesComplete(t *testing.T) {
	je := newJobExecution(t)
	s := New("parallel", worker.NewPool(worker.WithSize(2)),
		&branch{name: "a", status: model.BatchStatusCompleted, delay: 20 * time.Millisecond},
		&branch{name: "b", status: model.BatchStatusCompleted},
	)

	fe, err := s.Execute(context.Background(), je)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, fe.Status)
	assert.Equal(t, model.ExitCodeCompleted, fe.ExitStatus.ExitCode)
	require.Len(t, fe.StepExecutions, 2)
	assert.Equal(t, "aStep", fe.StepExecutions[0].StepName)
	assert.Empty(t, je.StepExecutions(), "branches never touch the job execution")
}

func TestSplit_FailedBeatsStopped(t *testing.T) {
	je := newJobExecution(t)
	s := New("parallel", worker.NewPool(),
		&branch{name: "a", status: model.BatchStatusStopped, err: &exception.JobAbortError{Err: context.Canceled}},
		&branch{name: "b", status: model.BatchStatusFailed, err: errors.New("disk full")},
		&branch{name: "c", status: model.BatchStatusCompleted},
	)

	fe, err := s.Execute(context.Background(), je)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch 'b': disk full")
	assert.ErrorIs(t, err, exception.ErrJobAborted)
	assert.Equal(t, model.BatchStatusFailed, fe.Status)
	assert.Contains(t, fe.ExitStatus.ExitDescription, "b")
	assert.Len(t, fe.StepExecutions, 3)
}

func TestSplit_StoppedWhenNoBranchFailed(t *testing.T) {
	je := newJobExecution(t)
	s := New("parallel", worker.NewPool(),
		&branch{name: "a", status: model.BatchStatusStopped, err: &exception.JobAbortError{Err: context.Canceled}},
		&branch{name: "b", status: model.BatchStatusCompleted},
	)

	fe, err := s.Execute(context.Background(), je)

	assert.ErrorIs(t, err, exception.ErrJobAborted)
	assert.Equal(t, model.BatchStatusStopped, fe.Status)
	assert.Equal(t, model.ExitCodeStopped, fe.ExitStatus.ExitCode)
}

func TestSplit_StoppedKeepsWorstBranchExitStatus(t *testing.T) {
	je := newJobExecution(t)
	halted := model.ExitStatusStopped.AddExitDescription("halted after chunk 3")
	paused := model.NewExitStatus("PAUSED", "quota reached")
	s := New("parallel", worker.NewPool(),
		&branch{name: "a", status: model.BatchStatusStopped, exit: &halted},
		&branch{name: "b", status: model.BatchStatusStopped, exit: &paused},
		&branch{name: "c", status: model.BatchStatusCompleted},
	)

	fe, err := s.Execute(context.Background(), je)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, fe.Status)
	assert.Equal(t, "PAUSED", fe.ExitStatus.ExitCode)
	assert.Contains(t, fe.ExitStatus.ExitDescription, "halted after chunk 3")
	assert.Contains(t, fe.ExitStatus.ExitDescription, "quota reached")
}

func TestSplit_CancelledContextDispatchesNothing(t *testing.T) {
	je := newJobExecution(t)
	var ran int32
	s := New("parallel", worker.NewPool(),
		&branch{name: "a", status: model.BatchStatusCompleted, ran: &ran},
		&branch{name: "b", status: model.BatchStatusCompleted, ran: &ran},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fe, err := s.Execute(ctx, je)

	assert.ErrorIs(t, err, exception.ErrJobAborted)
	assert.Equal(t, model.BatchStatusStopped, fe.Status)
	assert.Zero(t, atomic.LoadInt32(&ran))
}
