package tasklet

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	testutil "github.com/tigerroll/chunkflow/pkg/batch/test"
)

func setup(t *testing.T) (*inmemory.InMemoryJobRepository, *model.JobExecution, *model.StepExecution) {
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution(t, repo, "taskletJob", model.NewJobParameters())
	return repo, je, testutil.NewTestStepExecution(t, repo, je, "hello")
}

func TestTaskletStep_Completes(t *testing.T) {
	repo, je, se := setup(t)
	txm := testutil.NewCountingTxManager()
	var seen *model.StepExecution
	s := NewTaskletStep("hello", port.TaskletFunc(func(ctx context.Context, got *model.StepExecution) (model.ExitStatus, error) {
		seen, _ = port.StepExecutionFromContext(ctx)
		return model.ExitStatusCompleted, nil
	}), repo, txm, nil, nil)

	require.NoError(t, s.Execute(context.Background(), je, se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 1, txm.Commits)
	assert.Same(t, se, seen)
}

func TestTaskletStep_NoopExitSurvivesCompletion(t *testing.T) {
	repo, je, se := setup(t)
	s := NewTaskletStep("hello", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return model.ExitStatusNoOp, nil
	}), repo, nil, nil, nil)

	require.NoError(t, s.Execute(context.Background(), je, se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusNoOp.ExitCode, se.ExitStatus.ExitCode)
}

func TestTaskletStep_ErrorRollsBack(t *testing.T) {
	repo, je, se := setup(t)
	txm := testutil.NewCountingTxManager()
	s := NewTaskletStep("hello", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return model.ExitStatusFailed, errors.New("no greeting")
	}), repo, txm, nil, nil)

	err := s.Execute(context.Background(), je, se)

	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, txm.Rollbacks)
	assert.Contains(t, se.ExitStatus.ExitDescription, "no greeting")
}

func TestTaskletStep_PanicFails(t *testing.T) {
	repo, je, se := setup(t)
	s := NewTaskletStep("hello", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		panic("boom")
	}), repo, nil, nil, nil)

	err := s.Execute(context.Background(), je, se)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
}

func TestParseIsolationLevel(t *testing.T) {
	assert.Equal(t, sql.LevelSerializable, ParseIsolationLevel("serializable"))
	assert.Equal(t, sql.LevelReadCommitted, ParseIsolationLevel("READ_COMMITTED"))
	assert.Equal(t, sql.LevelDefault, ParseIsolationLevel(""))
}
