package job

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/chunkflow/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/split"
	"github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/executor"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/worker"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()
	input, err := os.ReadFile(filepath.Join("..", "..", "data", "input.txt"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.txt"), input, 0o644))

	cfg := config.NewConfig()
	repo := inmemory.NewInMemoryJobRepository()
	recorder, tracer := metrics.NewNoOpMetricRecorder(), metrics.NewNoOpTracer()
	pool := worker.NewPool()
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	return Deps{
		Config:     cfg,
		Settings:   Settings{DataDir: dir},
		Builder:    &runner.Builder{Executor: executor.NewSimpleStepExecutor(tracer, recorder), Repository: repo, Recorder: recorder, Tracer: tracer},
		Splits:     split.NewFactory(pool),
		Repository: repo,
		Resources:  resource.New(cfg),
	}
}

func launch(t *testing.T, d Deps, job port.Job) *model.JobExecution {
	t.Helper()
	registry, err := usecase.NewMapJobRegistry(job)
	require.NoError(t, err)
	je, err := usecase.NewSimpleJobLauncher(d.Repository, registry).Launch(context.Background(), job.JobName(), model.NewJobParameters())
	require.NoError(t, err)
	return je
}

func TestMultiThreadJob_WritesEveryAmountInChunks(t *testing.T) {
	d := testDeps(t)

	je := launch(t, d, NewMultiThreadJob(d))

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	steps := je.StepExecutions()
	require.Len(t, steps, 1)
	assert.Equal(t, 12, steps[0].ReadCount)
	assert.Equal(t, 12, steps[0].WriteCount)
	assert.Equal(t, 3, steps[0].CommitCount, "chunks of 5, 5 and 2")

	out, err := os.ReadFile(d.Settings.Path("output.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 12)
	assert.Contains(t, lines[0], ",")
}

func TestParallelJob_JoinsBothBranches(t *testing.T) {
	d := testDeps(t)

	je := launch(t, d, NewParallelJob(d))

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	names := map[string]bool{}
	for _, se := range je.StepExecutions() {
		names[se.StepName] = true
		assert.Equal(t, model.BatchStatusCompleted, se.Status, se.StepName)
	}
	assert.True(t, names["amountFileStep"])
	assert.True(t, names["anotherStep"])
}

func TestAdvancedJob_RejectsMissingTargetDate(t *testing.T) {
	d := testDeps(t)
	registry, err := usecase.NewMapJobRegistry(NewAdvancedJob(d))
	require.NoError(t, err)

	je, err := usecase.NewSimpleJobLauncher(d.Repository, registry).Launch(context.Background(), AdvancedJobName, model.NewJobParameters())

	assert.Error(t, err)
	assert.Nil(t, je)
	_, err = d.Repository.FindLatestJobInstance(context.Background(), AdvancedJobName)
	assert.Error(t, err, "no instance is created for invalid parameters")
}
