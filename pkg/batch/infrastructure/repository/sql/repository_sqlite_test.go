package sql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	_ "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm/sqlite"
	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

func setupRepository(t *testing.T) *SQLJobRepository {
	t.Helper()
	dbCfg := config.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "meta.db")}
	require.NoError(t, Migrate(context.Background(), dbCfg))
	// a second run has nothing to apply
	require.NoError(t, Migrate(context.Background(), dbCfg))

	db, err := gormadaptor.Open(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewSQLJobRepository(db)
}

func saveInstance(t *testing.T, repo *SQLJobRepository, name string, params model.JobParameters) *model.JobInstance {
	t.Helper()
	ji, err := model.NewJobInstance(name, params)
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(context.Background(), ji))
	return ji
}

func TestSQLJobRepository_JobInstance(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)
	params := model.NewJobParameters().
		PutString("targetDate", "2024-03-01").
		PutLong("run.id", 3)

	ji := saveInstance(t, repo, "importJob", params)

	dup, err := model.NewJobInstance("importJob", params)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SaveJobInstance(ctx, dup), repository.ErrJobInstanceAlreadyExists)

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "importJob", params)
	require.NoError(t, err)
	assert.Equal(t, ji.ID, found.ID)
	assert.True(t, found.Parameters.Equal(params))
	runID, ok := found.Parameters.GetLong("run.id")
	assert.True(t, ok)
	assert.EqualValues(t, 3, runID)

	latest, err := repo.FindLatestJobInstance(ctx, "importJob")
	require.NoError(t, err)
	assert.Equal(t, ji.ID, latest.ID)

	_, err = repo.FindJobInstanceByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"importJob"}, names)
}

func TestSQLJobRepository_JobAndStepExecutions(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)
	ji := saveInstance(t, repo, "job", model.NewJobParameters())

	je := model.NewJobExecution(ji, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	je.MarkAsStarted()
	je.ExecutionContext.Put("total", 12)
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	se := model.NewStepExecution("load", je)
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	se.MarkAsStarted()
	se.ReadCount, se.WriteCount, se.CommitCount = 12, 12, 3
	se.MarkAsCompleted()
	require.NoError(t, repo.UpdateStepExecution(ctx, se))

	loaded, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarted, loaded.Status)
	assert.False(t, loaded.StartTime.IsZero())
	total, _ := loaded.ExecutionContext.GetInt("total")
	assert.Equal(t, 12, total)

	steps := loaded.StepExecutions()
	require.Len(t, steps, 1)
	assert.Equal(t, model.BatchStatusCompleted, steps[0].Status)
	assert.Equal(t, 3, steps[0].CommitCount)
	assert.NotNil(t, steps[0].EndTime)

	running, err := repo.FindRunningJobExecutions(ctx, "job")
	require.NoError(t, err)
	assert.Len(t, running, 1)

	byInstance, err := repo.FindJobExecutionsByJobInstance(ctx, ji)
	require.NoError(t, err)
	assert.Len(t, byInstance, 1)
}

func TestSQLJobRepository_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)
	ji := saveInstance(t, repo, "job", model.NewJobParameters())
	je := model.NewJobExecution(ji, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	stale, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)

	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	stale.MarkAsStarted()
	err = repo.UpdateJobExecution(ctx, stale)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, stale.Version, "version restored after a failed update")
}

func TestSQLJobRepository_ExecutionContextStore(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)
	scope := port.Scope{Kind: port.ScopeJob, ExecutionID: "je-1"}

	require.NoError(t, repo.Put(ctx, scope, "cursor", "a"))
	require.NoError(t, repo.Put(ctx, scope, "cursor", "b"))
	require.NoError(t, repo.Put(ctx, scope, "count", 5))

	v, ok, err := repo.Get(ctx, scope, "cursor")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok, err = repo.Get(ctx, port.Scope{Kind: port.ScopeStep, ExecutionID: "je-1"}, "cursor")
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := repo.Snapshot(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	n, _ := snap.GetInt("count")
	assert.Equal(t, 5, n)
}
