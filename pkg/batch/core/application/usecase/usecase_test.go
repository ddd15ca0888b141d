package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/incrementer"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/validator"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/executor"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

type env struct {
	repo     *inmemory.InMemoryJobRepository
	builder  *runner.Builder
	registry *MapJobRegistry
	launcher *SimpleJobLauncher
	operator *DefaultJobOperator
	explorer *SimpleJobExplorer
}

func newEnv(t *testing.T) *env {
	repo := inmemory.NewInMemoryJobRepository()
	registry, err := NewMapJobRegistry()
	require.NoError(t, err)
	launcher := NewSimpleJobLauncher(repo, registry)
	return &env{
		repo:     repo,
		builder:  &runner.Builder{Executor: executor.NewSimpleStepExecutor(nil, nil), Repository: repo},
		registry: registry,
		launcher: launcher,
		operator: NewDefaultJobOperator(repo, registry, launcher),
		explorer: NewSimpleJobExplorer(repo),
	}
}

func (e *env) register(t *testing.T, name string, fn port.TaskletFunc, opts ...runner.JobOption) {
	s := tasklet.NewTaskletStep(name+"Step", fn, e.repo, nil, nil, nil)
	require.NoError(t, e.registry.Register(e.builder.Job(name, e.builder.Flow(name).AddStep(s), opts...)))
}

func ok(context.Context, *model.StepExecution) (model.ExitStatus, error) {
	return model.ExitStatusCompleted, nil
}

func TestLaunch_UnknownJob(t *testing.T) {
	e := newEnv(t)
	je, err := e.launcher.Launch(context.Background(), "missing", model.NewJobParameters())
	assert.Nil(t, je)
	assert.ErrorIs(t, err, ErrNoSuchJob)
	assert.Equal(t, ExitCodeLaunch, ExitCodeFor(je, err))
}

func TestLaunch_ValidationFailsBeforeAnyExecution(t *testing.T) {
	e := newEnv(t)
	e.register(t, "advancedJob", ok, runner.WithValidator(validator.NewDateParameterValidator("targetDate")))
	ctx := context.Background()

	_, err := e.launcher.Launch(ctx, "advancedJob", model.NewJobParameters())
	var ve *exception.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "targetDate", ve.Parameter)

	_, err = e.launcher.Launch(ctx, "advancedJob", model.NewJobParameters().PutString("targetDate", "not-a-date"))
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Reason, "invalid date")

	names, err := e.explorer.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "no JobInstance is created for invalid parameters")

	je, err := e.launcher.Launch(ctx, "advancedJob", model.NewJobParameters().PutString("targetDate", "2023-06-01"))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, ExitCodeCompleted, ExitCodeFor(je, err))
}

func TestLaunch_SameParametersSameInstance(t *testing.T) {
	e := newEnv(t)
	e.register(t, "helloJob", ok)
	ctx := context.Background()
	params := model.NewJobParameters().PutString("name", "world")

	first, err := e.launcher.Launch(ctx, "helloJob", params)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, first.Status)

	_, err = e.launcher.Launch(ctx, "helloJob", params)
	assert.ErrorIs(t, err, ErrJobInstanceAlreadyComplete)
}

func TestLaunch_IncrementerGivesDistinctInstances(t *testing.T) {
	e := newEnv(t)
	e.register(t, "partitioningJob", ok, runner.WithIncrementer(incrementer.NewRunIDIncrementer("")))
	ctx := context.Background()

	first, err := e.launcher.Launch(ctx, "partitioningJob", model.NewJobParameters())
	require.NoError(t, err)
	second, err := e.launcher.Launch(ctx, "partitioningJob", model.NewJobParameters())
	require.NoError(t, err)

	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)
	runID, _ := second.Parameters.GetLong(incrementer.DefaultRunIDKey)
	assert.EqualValues(t, 2, runID)

	last, err := e.explorer.GetLastJobInstance(ctx, "partitioningJob")
	require.NoError(t, err)
	assert.Equal(t, second.JobInstanceID, last.ID)
}

func TestOperator_RestartAndAbandon(t *testing.T) {
	e := newEnv(t)
	fail := true
	e.register(t, "flakyJob", func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		if fail {
			return model.ExitStatusFailed, errors.New("remote unavailable")
		}
		return model.ExitStatusCompleted, nil
	})
	ctx := context.Background()

	failed, err := e.launcher.Launch(ctx, "flakyJob", model.NewJobParameters())
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusFailed, failed.Status)
	assert.Equal(t, ExitCodeFailed, ExitCodeFor(failed, nil))

	fail = false
	restarted, err := e.operator.Restart(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)

	_, err = e.operator.Restart(ctx, failed.ID)
	assert.ErrorIs(t, err, ErrJobRestart)
	assert.Error(t, e.operator.Abandon(ctx, restarted.ID), "completed executions cannot be abandoned")
}

func TestOperator_AbandonBlocksRelaunch(t *testing.T) {
	e := newEnv(t)
	e.register(t, "brokenJob", func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return model.ExitStatusFailed, errors.New("broken")
	})
	ctx := context.Background()
	params := model.NewJobParameters().PutString("file", "in.csv")

	failed, err := e.launcher.Launch(ctx, "brokenJob", params)
	require.NoError(t, err)
	require.NoError(t, e.operator.Abandon(ctx, failed.ID))

	stored, err := e.explorer.GetJobExecution(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAbandoned, stored.Status)

	_, err = e.launcher.Launch(ctx, "brokenJob", params)
	assert.ErrorIs(t, err, ErrJobRestart)
}

func TestOperator_StopRunningExecution(t *testing.T) {
	e := newEnv(t)
	started := make(chan string, 1)
	e.register(t, "longJob", func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		started <- se.JobExecutionID
		<-ctx.Done()
		return model.ExitStatusStopped, ctx.Err()
	})
	ctx := context.Background()

	done := make(chan *model.JobExecution, 1)
	go func() {
		je, _ := e.launcher.Launch(ctx, "longJob", model.NewJobParameters())
		done <- je
	}()

	var id string
	select {
	case id = <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	running, err := e.explorer.FindRunningJobExecutions(ctx, "longJob")
	require.NoError(t, err)
	assert.Len(t, running, 1)

	require.NoError(t, e.operator.Stop(ctx, id))

	var je *model.JobExecution
	select {
	case je = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never stopped")
	}
	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.Equal(t, ExitCodeStopped, ExitCodeFor(je, nil))
	assert.Error(t, e.operator.Stop(ctx, id), "a finished execution cannot be stopped")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(model.BatchStatusCompleted))
	assert.Equal(t, 1, ExitCode(model.BatchStatusFailed))
	assert.Equal(t, 3, ExitCode(model.BatchStatusStopped))
	assert.Equal(t, 4, ExitCode(model.BatchStatusAbandoned))
}
