package item

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/chunkflow/pkg/batch/test"
)

type fixture struct {
	repo *inmemory.InMemoryJobRepository
	je   *model.JobExecution
	se   *model.StepExecution
	txm  *testutil.CountingTxManager
}

func newFixture(t *testing.T) *fixture {
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution(t, repo, "chunkJob", model.NewJobParameters())
	return &fixture{
		repo: repo,
		je:   je,
		se:   testutil.NewTestStepExecution(t, repo, je, "chunkStep"),
		txm:  testutil.NewCountingTxManager(),
	}
}

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

var toText = port.ItemProcessorFunc[int, string](func(_ context.Context, n int) (string, bool, error) {
	return strconv.Itoa(n), false, nil
})

func TestChunkStep_TwelveItemsInChunksOfFive(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(12)...), toText, writer, 5, f.repo, f.txm)

	err := s.Execute(context.Background(), f.je, f.se)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, f.se.Status)
	assert.Equal(t, model.ExitCodeCompleted, f.se.ExitStatus.ExitCode)
	assert.Equal(t, 12, f.se.ReadCount)
	assert.Equal(t, 12, f.se.WriteCount)
	assert.Equal(t, 3, f.se.CommitCount)
	assert.Equal(t, 0, f.se.RollbackCount)

	chunks := writer.Chunks()
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 5)
	assert.Len(t, chunks[1], 5)
	assert.Len(t, chunks[2], 2)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}, writer.Items())

	rc, _ := f.se.ExecutionContext.GetInt(ReadCountKey)
	wc, _ := f.se.ExecutionContext.GetInt(WriteCountKey)
	assert.Equal(t, 12, rc)
	assert.Equal(t, 12, wc)

	stored, err := f.repo.FindStepExecutionByID(context.Background(), f.se.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.WriteCount)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
}

func TestChunkStep_ExactMultipleEndsWithoutEmptyCommit(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(10)...), toText, writer, 5, f.repo, f.txm)

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 2, f.se.CommitCount)
	assert.Equal(t, 10, f.se.WriteCount)
	assert.Equal(t, 2, f.txm.Commits)
}

func TestChunkStep_EmptyInputCompletesWithZeroCounts(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader[int](), toText, writer, 5, f.repo, f.txm)

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, model.BatchStatusCompleted, f.se.Status)
	assert.Zero(t, f.se.ReadCount)
	assert.Zero(t, f.se.WriteCount)
	assert.Zero(t, f.se.CommitCount)
	assert.Zero(t, writer.Calls())
	assert.Zero(t, f.txm.Commits)
}

func TestChunkStep_WriterFailureKeepsEarlierChunks(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{
		Fail: func(call int, _ []string) error {
			if call == 2 {
				return errors.New("disk full")
			}
			return nil
		},
	}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(12)...), toText, writer, 5, f.repo, f.txm)

	err := s.Execute(context.Background(), f.je, f.se)

	var cpe *exception.ChunkProcessingError
	require.ErrorAs(t, err, &cpe)
	assert.Equal(t, exception.PhaseWrite, cpe.Phase)
	assert.Equal(t, 2, cpe.Chunk)
	assert.Equal(t, 5, cpe.WriteCount)

	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
	assert.Equal(t, 5, f.se.WriteCount, "(k-1)*C items stay committed")
	assert.Equal(t, 1, f.se.CommitCount)
	assert.Equal(t, 1, f.se.RollbackCount)
	assert.Len(t, writer.Items(), 5)
	assert.Contains(t, f.se.ExitStatus.ExitDescription, "disk full")
}

func TestChunkStep_ProcessorFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{}
	failing := port.ItemProcessorFunc[int, string](func(_ context.Context, n int) (string, bool, error) {
		if n == 7 {
			return "", false, errors.New("bad record 7")
		}
		return strconv.Itoa(n), false, nil
	})
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(12)...), failing, writer, 5, f.repo, f.txm)

	err := s.Execute(context.Background(), f.je, f.se)

	var cpe *exception.ChunkProcessingError
	require.ErrorAs(t, err, &cpe)
	assert.Equal(t, exception.PhaseProcess, cpe.Phase)
	assert.Equal(t, 5, f.se.WriteCount)
	assert.Equal(t, 1, f.se.RollbackCount)
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
}

func TestChunkStep_ReaderFailureIsFatalWithoutRollbackCount(t *testing.T) {
	f := newFixture(t)
	reader := testutil.NewSliceReader(numbers(12)...)
	reader.FailAt[3] = errors.New("socket closed")
	writer := &testutil.RecordingWriter[string]{}
	s := NewChunkStep[int, string]("chunkStep", reader, toText, writer, 5, f.repo, f.txm)

	err := s.Execute(context.Background(), f.je, f.se)

	var cpe *exception.ChunkProcessingError
	require.ErrorAs(t, err, &cpe)
	assert.Equal(t, exception.PhaseRead, cpe.Phase)
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
	assert.Zero(t, f.se.RollbackCount)
	assert.Zero(t, writer.Calls())
	assert.Equal(t, 1, f.txm.Rollbacks, "the open transaction is released")
}

func TestChunkStep_FilteredItemsAreCountedNotWritten(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{}
	oddOnly := port.ItemProcessorFunc[int, string](func(_ context.Context, n int) (string, bool, error) {
		return strconv.Itoa(n), n%2 == 0, nil
	})
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(6)...), oddOnly, writer, 3, f.repo, f.txm)

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 6, f.se.ReadCount)
	assert.Equal(t, 3, f.se.FilterCount)
	assert.Equal(t, 3, f.se.WriteCount)
	assert.Equal(t, []string{"1", "3", "5"}, writer.Items())
}

func TestChunkStep_WriteRetryRewritesWholeChunk(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{
		Fail: func(call int, _ []string) error {
			if call == 1 {
				return exception.NewBatchError("writer", "deadlock", errors.New("deadlock detected"), false, true)
			}
			return nil
		},
	}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(4)...), toText, writer, 4, f.repo, f.txm,
		WithRetryPolicy(retry.NewSimplePolicy(3, 0, nil)))

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 2, writer.Calls())
	assert.Equal(t, []string{"1", "2", "3", "4"}, writer.Items())
	assert.Equal(t, 4, f.se.WriteCount)
	assert.Equal(t, 1, f.se.RollbackCount)
	assert.Equal(t, 1, f.se.CommitCount)
}

func TestChunkStep_WriteSkipRewritesItemByItem(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{
		Fail: func(_ int, items []string) error {
			for _, it := range items {
				if it == "3" {
					return errors.New("constraint violation on 3")
				}
			}
			return nil
		},
	}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(5)...), toText, writer, 5, f.repo, f.txm,
		WithSkipPolicy(skip.NewLimitPolicy(2, []string{"constraint violation"})))

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, model.BatchStatusCompleted, f.se.Status)
	assert.Equal(t, []string{"1", "2", "4", "5"}, writer.Items())
	assert.Equal(t, 4, f.se.WriteCount)
	assert.Equal(t, 1, f.se.WriteSkipCount)
	assert.Equal(t, 5, f.se.ReadCount)
}

type recordingSkipListener struct {
	process []interface{}
}

func (l *recordingSkipListener) OnSkipInRead(context.Context, error) {}
func (l *recordingSkipListener) OnSkipInProcess(_ context.Context, item interface{}, _ error) {
	l.process = append(l.process, item)
}
func (l *recordingSkipListener) OnSkipInWrite(context.Context, interface{}, error) {}

func TestChunkStep_ProcessSkipWithinLimit(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[string]{}
	listener := &recordingSkipListener{}
	picky := port.ItemProcessorFunc[int, string](func(_ context.Context, n int) (string, bool, error) {
		if n%4 == 0 {
			return "", false, errors.New("malformed record")
		}
		return strconv.Itoa(n), false, nil
	})
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(8)...), picky, writer, 5, f.repo, f.txm,
		WithSkipPolicy(skip.NewLimitPolicy(2, []string{"malformed"})), WithListener(listener))

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 2, f.se.ProcessSkipCount)
	assert.Equal(t, 6, f.se.WriteCount)
	assert.Equal(t, []interface{}{4, 8}, listener.process)
}

func TestChunkStep_SkipLimitExceededFails(t *testing.T) {
	f := newFixture(t)
	picky := port.ItemProcessorFunc[int, string](func(_ context.Context, n int) (string, bool, error) {
		return "", false, errors.New("malformed record")
	})
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(3)...), picky, &testutil.RecordingWriter[string]{}, 5, f.repo, f.txm,
		WithSkipPolicy(skip.NewLimitPolicy(2, []string{"malformed"})))

	err := s.Execute(context.Background(), f.je, f.se)

	assert.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, f.se.Status)
}

type stopAfterFirstChunk struct {
	cancel context.CancelFunc
}

func (l *stopAfterFirstChunk) BeforeChunk(context.Context, *model.StepExecution) {}
func (l *stopAfterFirstChunk) AfterChunk(context.Context, *model.StepExecution)  { l.cancel() }
func (l *stopAfterFirstChunk) AfterChunkError(context.Context, *model.StepExecution, error) {
}

func TestChunkStep_StopIsObservedBetweenChunks(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer := &testutil.RecordingWriter[string]{}
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(numbers(12)...), toText, writer, 5, f.repo, f.txm,
		WithListener(&stopAfterFirstChunk{cancel: cancel}))

	err := s.Execute(ctx, f.je, f.se)

	assert.True(t, step.IsStopRequest(err))
	assert.ErrorIs(t, err, exception.ErrJobAborted)
	assert.Equal(t, model.BatchStatusStopped, f.se.Status)
	assert.Equal(t, 5, f.se.WriteCount, "the chunk in flight completes")

	stored, findErr := f.repo.FindStepExecutionByID(context.Background(), f.se.ID)
	require.NoError(t, findErr)
	assert.Equal(t, model.BatchStatusStopped, stored.Status)
}

func TestChunkStep_ResumesCountersFromExecutionContext(t *testing.T) {
	f := newFixture(t)
	f.se.ExecutionContext.Put(ReadCountKey, 5)
	f.se.ExecutionContext.Put(WriteCountKey, 5)
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(6, 7), toText, &testutil.RecordingWriter[string]{}, 5, f.repo, f.txm)

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, 7, f.se.ReadCount)
	assert.Equal(t, 7, f.se.WriteCount)
}

type streamReader struct {
	*testutil.SliceReader[int]
	opened, closed bool
	updates        int
}

func (r *streamReader) Open(context.Context, model.ExecutionContext) error {
	r.opened = true
	return nil
}
func (r *streamReader) Update(_ context.Context, ec model.ExecutionContext) error {
	r.updates++
	ec.Put("stream.position", r.updates)
	return nil
}
func (r *streamReader) Close(context.Context) error { r.closed = true; return nil }

func TestChunkStep_ItemStreamLifecycle(t *testing.T) {
	f := newFixture(t)
	reader := &streamReader{SliceReader: testutil.NewSliceReader(numbers(7)...)}
	s := NewChunkStep[int, string]("chunkStep", reader, toText, &testutil.RecordingWriter[string]{}, 5, f.repo, f.txm)

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.True(t, reader.opened)
	assert.True(t, reader.closed)
	assert.Equal(t, 2, reader.updates)
	pos, _ := f.se.ExecutionContext.GetInt("stream.position")
	assert.Equal(t, 2, pos)
}

type noopOverride struct{}

func (noopOverride) BeforeStep(context.Context, *model.StepExecution) error { return nil }
func (noopOverride) AfterStep(context.Context, *model.StepExecution) *model.ExitStatus {
	exit := model.ExitStatusNoOp
	return &exit
}

func TestChunkStep_AfterStepOverridesExitStatus(t *testing.T) {
	f := newFixture(t)
	s := NewChunkStep[int, string]("chunkStep", testutil.NewSliceReader(1), toText, &testutil.RecordingWriter[string]{}, 5, f.repo, f.txm,
		WithListener(noopOverride{}))

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, model.BatchStatusCompleted, f.se.Status)
	assert.Equal(t, model.ExitCodeNoOp, f.se.ExitStatus.ExitCode)
}

func TestChunkStep_PassThroughWithoutProcessor(t *testing.T) {
	f := newFixture(t)
	writer := &testutil.RecordingWriter[int]{}
	s := NewChunkStep[int, int]("chunkStep", testutil.NewSliceReader(1, 2, 3), nil, writer, 2, f.repo, f.txm)

	require.NoError(t, s.Execute(context.Background(), f.je, f.se))

	assert.Equal(t, []int{1, 2, 3}, writer.Items())
}

func TestRunChunkStep(t *testing.T) {
	writer := &testutil.RecordingWriter[string]{}

	res, err := RunChunkStep[int, string](context.Background(), testutil.NewSliceReader(numbers(7)...), toText, writer, 3)

	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, res.Status)
	assert.Equal(t, 7, res.ReadCount)
	assert.Equal(t, 7, res.WriteCount)
	assert.Equal(t, 3, res.CommitCount)
}
