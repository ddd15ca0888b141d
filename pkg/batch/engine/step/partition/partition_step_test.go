package partition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/executor"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/worker"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/chunkflow/pkg/batch/test"
)

const itemsPerPartition = 3

// chunkWorkers gives every partition its own reader over a disjoint range of ints.
func chunkWorkers(repo *inmemory.InMemoryJobRepository, writer port.ItemWriter[int]) StepProvider {
	return func(partition string, ec model.ExecutionContext) (port.Step, error) {
		index, _, ok := Index(ec)
		if !ok {
			return nil, errors.New("missing partition index")
		}
		items := make([]int, itemsPerPartition)
		for i := range items {
			items[i] = index*itemsPerPartition + i + 1
		}
		return item.NewChunkStep[int, int]("worker", testutil.NewSliceReader(items...), nil, writer, 2, repo, nil), nil
	}
}

func TestSimplePartitioner(t *testing.T) {
	parts, err := NewSimplePartitioner().Partition(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	index, count, ok := Index(parts["partition2"])
	require.True(t, ok)
	assert.Equal(t, 2, index)
	assert.Equal(t, 3, count)

	_, err = NewSimplePartitioner().Partition(context.Background(), 0)
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	assert.Equal(t, "partition1", Name("load", WorkerStepName("load", "partition1")))
	assert.Equal(t, "other", Name("load", "other"))
}

func TestPartitionStep_AllPartitionsComplete(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution(t, repo, "partitionJob", model.NewJobParameters())
	se := testutil.NewTestStepExecution(t, repo, je, "load")
	writer := &testutil.RecordingWriter[int]{}

	handler := NewTaskExecutorPartitionHandlerFunc(chunkWorkers(repo, writer),
		worker.NewPool(worker.WithSize(2)), executor.NewSimpleStepExecutor(nil, nil), repo)
	s := NewPartitionStep("load", nil, handler, 4, repo, nil, nil)

	require.NoError(t, s.Execute(context.Background(), je, se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 12, se.ReadCount)
	assert.Equal(t, 12, se.WriteCount)
	assert.Equal(t, 8, se.CommitCount)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, writer.Items())

	rc, ok := se.ExecutionContext.GetInt("partition3." + item.ReadCountKey)
	require.True(t, ok)
	assert.Equal(t, 3, rc)

	stored, err := repo.FindStepExecutionsByJobExecutionID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
	for _, w := range stored {
		assert.Equal(t, model.BatchStatusCompleted, w.Status, w.StepName)
	}
}

func TestPartitionStep_OneFailingPartitionKeepsOthersCommitted(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution(t, repo, "partitionJob", model.NewJobParameters())
	se := testutil.NewTestStepExecution(t, repo, je, "load")
	writer := &testutil.RecordingWriter[int]{
		Fail: func(_ int, items []int) error {
			if items[0] == 7 {
				return errors.New("disk full")
			}
			return nil
		},
	}

	handler := NewTaskExecutorPartitionHandlerFunc(chunkWorkers(repo, writer),
		worker.NewPool(worker.WithSize(4)), executor.NewSimpleStepExecutor(nil, nil), repo)
	s := NewPartitionStep("load", nil, handler, 4, repo, nil, nil)

	err := s.Execute(context.Background(), je, se)

	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, se.Status)

	var pf *exception.PartitionFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "partition2", pf.Partition)
	assert.Equal(t, "load", pf.Step)
	assert.Contains(t, se.ExitStatus.ExitDescription, "partition2")

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 10, 11, 12}, writer.Items())
	assert.Equal(t, 9, se.WriteCount)

	failed, err := repo.FindStepExecutionsByJobExecutionID(context.Background(), je.ID)
	require.NoError(t, err)
	for _, w := range failed {
		switch w.StepName {
		case "load:partition2", "load":
			assert.Equal(t, model.BatchStatusFailed, w.Status, w.StepName)
		default:
			assert.Equal(t, model.BatchStatusCompleted, w.Status, w.StepName)
		}
	}
}

func TestPartitionStep_CancelledBeforeDispatchStops(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution(t, repo, "partitionJob", model.NewJobParameters())
	se := testutil.NewTestStepExecution(t, repo, je, "load")

	var ran int
	ws := tasklet.NewTaskletStep("worker", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		ran++
		return model.ExitStatusCompleted, nil
	}), repo, nil, nil, nil)
	handler := NewTaskExecutorPartitionHandler(ws, worker.NewPool(), executor.NewSimpleStepExecutor(nil, nil), repo)
	s := NewPartitionStep("load", nil, handler, 3, repo, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Execute(ctx, je, se)

	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrJobAborted)
	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Zero(t, ran)

	stored, err := repo.FindStepExecutionsByJobExecutionID(context.Background(), je.ID)
	require.NoError(t, err)
	for _, w := range stored {
		assert.Equal(t, model.BatchStatusStopped, w.Status, w.StepName)
	}
}
