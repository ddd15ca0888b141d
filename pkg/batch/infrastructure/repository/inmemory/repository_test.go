package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

func newInstance(t *testing.T, repo *InMemoryJobRepository, name string, params model.JobParameters) *model.JobInstance {
	t.Helper()
	ji, err := model.NewJobInstance(name, params)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(context.Background(), ji))
	return ji
}

func TestJobInstance_IdentityByNameAndParameters(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	params := model.NewJobParameters().PutString("targetDate", "2024-01-01")

	ji := newInstance(t, repo, "importJob", params)

	dup, err := model.NewJobInstance("importJob", model.NewJobParameters().PutString("targetDate", "2024-01-01"))
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SaveJobInstance(ctx, dup), repository.ErrJobInstanceAlreadyExists)

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "importJob", params)
	require.NoError(t, err)
	assert.Equal(t, ji.ID, found.ID)

	_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "importJob", params.PutString("targetDate", "2024-01-02"))
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestFindLatestJobInstance(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	newInstance(t, repo, "job", model.NewJobParameters().PutLong("run.id", 1))
	second := newInstance(t, repo, "job", model.NewJobParameters().PutLong("run.id", 2))
	newInstance(t, repo, "other", model.NewJobParameters())

	latest, err := repo.FindLatestJobInstance(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	count, err := repo.GetJobInstanceCount(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job", "other"}, names)

	_, err = repo.FindLatestJobInstance(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestJobExecution_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	ji := newInstance(t, repo, "job", model.NewJobParameters())
	je := model.NewJobExecution(ji, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	stale, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)

	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	stale.MarkAsStarted()
	err = repo.UpdateJobExecution(ctx, stale)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
}

func TestJobExecution_StoredCopyIsIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	ji := newInstance(t, repo, "job", model.NewJobParameters())
	je := model.NewJobExecution(ji, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	je.ExecutionContext.Put("k", "v")
	loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.False(t, loaded.ExecutionContext.ContainsKey("k"))
}

func TestStepExecutions_LoadedWithJobExecution(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	ji := newInstance(t, repo, "job", model.NewJobParameters())
	je := model.NewJobExecution(ji, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	first := model.NewStepExecution("first", je)
	require.NoError(t, repo.SaveStepExecution(ctx, first))
	second := model.NewStepExecution("second", je)
	require.NoError(t, repo.SaveStepExecution(ctx, second))

	second.WriteCount = 7
	require.NoError(t, repo.UpdateStepExecution(ctx, second))

	loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	steps := loaded.StepExecutions()
	require.Len(t, steps, 2)
	assert.Equal(t, "first", steps[0].StepName)
	assert.Equal(t, 7, steps[1].WriteCount)
	assert.Same(t, loaded, steps[1].JobExecution)

	running, err := repo.FindRunningJobExecutions(ctx, "job")
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestExecutionContextStore_Scopes(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryJobRepository()
	jobScope := port.Scope{Kind: port.ScopeJob, ExecutionID: "je-1"}
	stepScope := port.Scope{Kind: port.ScopeStep, ExecutionID: "je-1"}

	require.NoError(t, repo.Put(ctx, jobScope, "total", 10))
	_, ok, err := repo.Get(ctx, stepScope, "total")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := repo.Get(ctx, jobScope, "total")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	snap, err := repo.Snapshot(ctx, jobScope)
	require.NoError(t, err)
	n, _ := snap.GetInt("total")
	assert.Equal(t, 10, n)
}
