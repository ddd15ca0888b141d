// Package item implements chunk-oriented steps: items are read, processed and written in
// chunks of commitInterval items, each chunk inside one unit-of-work.
package item

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/retry"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Execution context keys written after every commit.
const (
	ReadCountKey  = "reader.read.count"
	WriteCountKey = "writer.write.count"
)

// ChunkStep reads items of type I, processes them into O and writes them in chunks.
type ChunkStep[I, O any] struct {
	step.Base

	reader         port.ItemReader[I]
	processor      port.ItemProcessor[I, O]
	writer         port.ItemWriter[O]
	commitInterval int
	txManager      tx.TransactionManager
	settings       *settings
}

// NewChunkStep creates a chunk step. A nil processor passes items through unchanged, which
// requires I and O to be the same type at run time. A nil txManager selects the
// resourceless manager.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	commitInterval int,
	jobRepository repository.JobRepository,
	txManager tx.TransactionManager,
	opts ...Option,
) *ChunkStep[I, O] {
	if commitInterval < 1 {
		commitInterval = 1
	}
	if txManager == nil {
		txManager = tx.NewResourcelessTransactionManager()
	}
	s := newSettings(opts)
	return &ChunkStep[I, O]{
		Base: step.Base{
			Name:       name,
			Repository: jobRepository,
			Listeners:  s.stepListeners,
			Promotion:  s.promotion,
		},
		reader:         reader,
		processor:      processor,
		writer:         writer,
		commitInterval: commitInterval,
		txManager:      txManager,
		settings:       s,
	}
}

// CommitInterval returns the number of items per chunk.
func (s *ChunkStep[I, O]) CommitInterval() int { return s.commitInterval }

// SetMetricRecorder implements step.Instrumented.
func (s *ChunkStep[I, O]) SetMetricRecorder(r metrics.MetricRecorder) { s.settings.recorder = r }

// SetTracer implements step.Instrumented.
func (s *ChunkStep[I, O]) SetTracer(t metrics.Tracer) { s.settings.tracer = t }

// Execute implements port.Step.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	return s.Run(ctx, je, se, s.run)
}

// contribution holds the counts of the chunk in flight. They reach the StepExecution only
// when the chunk commits.
type contribution struct {
	read, filter, write              int
	readSkip, processSkip, writeSkip int
}

func (c contribution) skips() int { return c.readSkip + c.processSkip + c.writeSkip }

func (c contribution) applyTo(se *model.StepExecution) {
	se.ReadCount += c.read
	se.FilterCount += c.filter
	se.WriteCount += c.write
	se.ReadSkipCount += c.readSkip
	se.ProcessSkipCount += c.processSkip
	se.WriteSkipCount += c.writeSkip
}

type commitError struct{ err error }

func (e *commitError) Error() string { return "commit failed: " + e.err.Error() }
func (e *commitError) Unwrap() error { return e.err }

func (s *ChunkStep[I, O]) run(ctx context.Context, je *model.JobExecution, se *model.StepExecution) (err error) {
	logger.Infof("ChunkStep '%s' executing (commit interval %d).", s.Name, s.commitInterval)
	ctx = port.WithStepExecution(ctx, se)
	// Chunks are never interrupted once started; cancellation is observed between them.
	chunkCtx := context.WithoutCancel(ctx)

	if rc, ok := se.ExecutionContext.GetInt(ReadCountKey); ok {
		se.ReadCount = rc
		if wc, ok := se.ExecutionContext.GetInt(WriteCountKey); ok {
			se.WriteCount = wc
		}
		logger.Infof("ChunkStep '%s': resuming after %d read / %d written items.", s.Name, se.ReadCount, se.WriteCount)
	}

	streams := s.streams()
	for i, st := range streams {
		if err := st.Open(chunkCtx, se.ExecutionContext); err != nil {
			for _, opened := range streams[:i] {
				_ = opened.Close(chunkCtx)
			}
			return exception.NewBatchError(s.Name, "failed to open item stream", err, false, false)
		}
	}
	defer func() {
		for _, st := range streams {
			if closeErr := st.Close(chunkCtx); closeErr != nil {
				logger.Warnf("ChunkStep '%s': failed to close item stream: %v", s.Name, closeErr)
				if err == nil {
					err = exception.NewBatchError(s.Name, "failed to close item stream", closeErr, false, false)
				}
			}
		}
	}()

	for chunk := 1; ; chunk++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &exception.JobAbortError{JobName: je.JobName, ExecutionID: je.ID, Err: ctxErr}
		}
		spanCtx, finish := s.settings.tracer.StartChunkSpan(chunkCtx, se, chunk)
		done, chunkErr := s.processChunk(ctx, spanCtx, se, chunk)
		if chunkErr != nil {
			s.settings.tracer.RecordError(spanCtx, s.Name, chunkErr)
		}
		finish()
		if chunkErr != nil {
			return chunkErr
		}
		if done {
			return nil
		}
	}
}

func (s *ChunkStep[I, O]) streams() []port.ItemStream {
	var out []port.ItemStream
	if st, ok := s.reader.(port.ItemStream); ok {
		out = append(out, st)
	}
	if s.processor != nil {
		if st, ok := s.processor.(port.ItemStream); ok {
			out = append(out, st)
		}
	}
	if st, ok := s.writer.(port.ItemStream); ok && !sameStream(out, st) {
		out = append(out, st)
	}
	return out
}

func sameStream(streams []port.ItemStream, st port.ItemStream) bool {
	for _, existing := range streams {
		if existing == st {
			return true
		}
	}
	return false
}

// processChunk runs one chunk. ctx carries cancellation for retry backoff; chunkCtx is used
// for everything else. It reports done once end-of-data was reached.
func (s *ChunkStep[I, O]) processChunk(ctx, chunkCtx context.Context, se *model.StepExecution, chunk int) (bool, error) {
	for _, l := range s.settings.chunkListeners {
		l.BeforeChunk(chunkCtx, se)
	}

	t, err := s.txManager.Begin(chunkCtx)
	if err != nil {
		return false, s.chunkFailure(chunkCtx, se, chunk, exception.PhaseRead,
			exception.NewBatchError(s.Name, "failed to begin chunk transaction", err, false, false))
	}
	txCtx := tx.WithTx(chunkCtx, t)

	var c contribution
	items, eod, err := s.readChunk(txCtx, se, &c)
	if err != nil {
		s.rollback(t)
		return false, s.chunkFailure(chunkCtx, se, chunk, exception.PhaseRead, err)
	}
	if len(items) == 0 {
		s.rollback(t)
		if c.readSkip > 0 {
			// Skipped reads still count even though nothing is committed.
			c.applyTo(se)
			if err := s.checkpoint(chunkCtx, se); err != nil {
				return false, err
			}
		}
		for _, l := range s.settings.chunkListeners {
			l.AfterChunk(chunkCtx, se)
		}
		logger.Debugf("ChunkStep '%s': end of data before chunk %d.", s.Name, chunk)
		return true, nil
	}

	outputs, err := s.processItems(ctx, txCtx, se, items, &c)
	if err != nil {
		s.rollback(t)
		se.RollbackCount++
		s.settings.recorder.RecordChunkRollback(chunkCtx, s.Name)
		return false, s.chunkFailure(chunkCtx, se, chunk, exception.PhaseProcess, err)
	}

	if err := s.writeChunk(ctx, chunkCtx, t, se, outputs, &c); err != nil {
		phase := exception.PhaseWrite
		var ce *commitError
		if errors.As(err, &ce) {
			phase = exception.PhaseCommit
		}
		return false, s.chunkFailure(chunkCtx, se, chunk, phase, err)
	}

	c.applyTo(se)
	s.settings.recorder.RecordItemRead(chunkCtx, s.Name, c.read)
	if c.filter > 0 {
		s.settings.recorder.RecordItemFilter(chunkCtx, s.Name, c.filter)
	}
	s.settings.recorder.RecordItemWrite(chunkCtx, s.Name, c.write)
	if err := s.checkpoint(chunkCtx, se); err != nil {
		return false, err
	}
	for _, l := range s.settings.chunkListeners {
		l.AfterChunk(chunkCtx, se)
	}
	logger.Debugf("ChunkStep '%s': chunk %d committed (read=%d, written=%d, filtered=%d).", s.Name, chunk, c.read, c.write, c.filter)
	return eod, nil
}

func (s *ChunkStep[I, O]) readChunk(ctx context.Context, se *model.StepExecution, c *contribution) ([]I, bool, error) {
	items := make([]I, 0, s.commitInterval)
	for len(items) < s.commitInterval {
		item, more, err := s.reader.Read(ctx)
		if err != nil {
			if s.settings.skipPolicy.ShouldSkip(err, se.SkipCount()+c.skips()) {
				c.readSkip++
				s.settings.recorder.RecordItemSkip(ctx, s.Name, string(exception.PhaseRead))
				for _, l := range s.settings.skipListeners {
					l.OnSkipInRead(ctx, err)
				}
				logger.Warnf("ChunkStep '%s': read skipped: %v", s.Name, err)
				continue
			}
			return items, false, err
		}
		if !more {
			return items, true, nil
		}
		c.read++
		items = append(items, item)
	}
	return items, false, nil
}

// processItems returns the outputs in read order.
func (s *ChunkStep[I, O]) processItems(ctx, txCtx context.Context, se *model.StepExecution, items []I, c *contribution) ([]O, error) {
	outputs := make([]O, 0, len(items))
	for _, item := range items {
		var (
			out      O
			filtered bool
		)
		err := retry.Do(ctx, s.settings.retryPolicy, func(int) error {
			var procErr error
			out, filtered, procErr = s.process(txCtx, item)
			return procErr
		}, func(attempt int, err error) { s.notifyRetry(txCtx, exception.PhaseProcess, attempt, err) })
		if err != nil {
			if s.settings.skipPolicy.ShouldSkip(err, se.SkipCount()+c.skips()) {
				c.processSkip++
				s.settings.recorder.RecordItemSkip(txCtx, s.Name, string(exception.PhaseProcess))
				for _, l := range s.settings.skipListeners {
					l.OnSkipInProcess(txCtx, item, err)
				}
				logger.Warnf("ChunkStep '%s': item skipped in process: %v", s.Name, err)
				continue
			}
			return nil, err
		}
		if filtered {
			c.filter++
			continue
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (s *ChunkStep[I, O]) process(ctx context.Context, item I) (O, bool, error) {
	if s.processor != nil {
		return s.processor.Process(ctx, item)
	}
	out, ok := any(item).(O)
	if !ok {
		var zero O
		return zero, false, fmt.Errorf("no processor configured and item of type %T is not assignable to the writer type", item)
	}
	return out, false, nil
}

// writeChunk writes outputs in t and commits. Retries rewrite the whole chunk in a fresh
// transaction; a skippable failure falls back to writing items one at a time.
func (s *ChunkStep[I, O]) writeChunk(ctx, chunkCtx context.Context, t tx.Tx, se *model.StepExecution, outputs []O, c *contribution) error {
	first := true
	err := retry.Do(ctx, s.settings.retryPolicy, func(int) error {
		cur := t
		if !first {
			var beginErr error
			if cur, beginErr = s.txManager.Begin(chunkCtx); beginErr != nil {
				return beginErr
			}
		}
		first = false
		return s.writeAndCommit(chunkCtx, cur, se, outputs)
	}, func(attempt int, err error) { s.notifyRetry(chunkCtx, exception.PhaseWrite, attempt, err) })
	if err == nil {
		c.write += len(outputs)
		return nil
	}
	if !s.settings.skipPolicy.ShouldSkip(err, se.SkipCount()+c.skips()) {
		return err
	}
	logger.Warnf("ChunkStep '%s': skippable write failure, rewriting %d items one by one: %v", s.Name, len(outputs), err)
	return s.scan(chunkCtx, se, outputs, c)
}

func (s *ChunkStep[I, O]) writeAndCommit(ctx context.Context, t tx.Tx, se *model.StepExecution, outputs []O) error {
	if len(outputs) > 0 {
		if err := s.writer.Write(tx.WithTx(ctx, t), outputs); err != nil {
			s.rollback(t)
			se.RollbackCount++
			s.settings.recorder.RecordChunkRollback(ctx, s.Name)
			return err
		}
	}
	if err := s.txManager.Commit(t); err != nil {
		se.RollbackCount++
		s.settings.recorder.RecordChunkRollback(ctx, s.Name)
		return &commitError{err: err}
	}
	se.CommitCount++
	s.settings.recorder.RecordChunkCommit(ctx, s.Name, len(outputs))
	return nil
}

// scan writes each item in its own transaction and skips the ones that still fail.
func (s *ChunkStep[I, O]) scan(ctx context.Context, se *model.StepExecution, outputs []O, c *contribution) error {
	for _, out := range outputs {
		t, err := s.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		err = s.writeAndCommit(ctx, t, se, []O{out})
		if err == nil {
			c.write++
			continue
		}
		if !s.settings.skipPolicy.ShouldSkip(err, se.SkipCount()+c.skips()) {
			return err
		}
		c.writeSkip++
		s.settings.recorder.RecordItemSkip(ctx, s.Name, string(exception.PhaseWrite))
		for _, l := range s.settings.skipListeners {
			l.OnSkipInWrite(ctx, out, err)
		}
		logger.Warnf("ChunkStep '%s': item skipped in write: %v", s.Name, err)
	}
	return nil
}

// checkpoint records the committed position and persists the StepExecution.
func (s *ChunkStep[I, O]) checkpoint(ctx context.Context, se *model.StepExecution) error {
	se.ExecutionContext.Put(ReadCountKey, se.ReadCount)
	se.ExecutionContext.Put(WriteCountKey, se.WriteCount)
	for _, st := range s.streams() {
		if err := st.Update(ctx, se.ExecutionContext); err != nil {
			return exception.NewBatchError(s.Name, "failed to update item stream state", err, false, false)
		}
	}
	if err := s.Repository.UpdateStepExecution(ctx, se); err != nil {
		return exception.NewBatchError(s.Name, "failed to persist chunk checkpoint", err, false, false)
	}
	return nil
}

func (s *ChunkStep[I, O]) rollback(t tx.Tx) {
	if err := s.txManager.Rollback(t); err != nil {
		logger.Warnf("ChunkStep '%s': rollback failed: %v", s.Name, err)
	}
}

func (s *ChunkStep[I, O]) notifyRetry(ctx context.Context, phase exception.Phase, attempt int, err error) {
	logger.Warnf("ChunkStep '%s': %s attempt %d failed, retrying: %v", s.Name, phase, attempt, err)
	s.settings.recorder.RecordItemRetry(ctx, s.Name, string(phase))
	for _, l := range s.settings.retryListeners {
		l.OnRetry(ctx, attempt, err)
	}
}

func (s *ChunkStep[I, O]) chunkFailure(ctx context.Context, se *model.StepExecution, chunk int, phase exception.Phase, err error) error {
	for _, l := range s.settings.chunkListeners {
		l.AfterChunkError(ctx, se, err)
	}
	return &exception.ChunkProcessingError{
		Step:       s.Name,
		Phase:      phase,
		Chunk:      chunk,
		ReadCount:  se.ReadCount,
		WriteCount: se.WriteCount,
		Err:        err,
	}
}

var _ port.Step = (*ChunkStep[any, any])(nil)
