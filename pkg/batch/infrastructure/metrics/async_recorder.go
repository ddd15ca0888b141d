package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is used when the configured buffer size is not positive.
const DefaultAsyncBufferSize = 100

// AsyncMetricRecorder hands every call to a single background goroutine that forwards it
// to the wrapped recorder. Calls never block: when the queue is full the event is dropped.
type AsyncMetricRecorder struct {
	queue    chan func(metrics.MetricRecorder)
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	delegate metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker goroutine. Close must be called to stop it.
func NewAsyncMetricRecorder(bufferSize int, delegate metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		queue:    make(chan func(metrics.MetricRecorder), bufferSize),
		stopCh:   make(chan struct{}),
		delegate: delegate,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: worker started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.queue:
			event(r.delegate)
		case <-r.stopCh:
			remaining := len(r.queue)
			for i := 0; i < remaining; i++ {
				(<-r.queue)(r.delegate)
			}
			logger.Debugf("AsyncMetricRecorder: worker stopped after draining %d events.", remaining)
			return
		}
	}
}

// Close stops the worker after draining queued events. It is safe to call more than once.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *AsyncMetricRecorder) send(kind string, event func(metrics.MetricRecorder)) {
	select {
	case <-r.stopCh:
		return
	default:
	}
	select {
	case r.queue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: queue full, dropping %s event.", kind)
	}
}

// detach keeps the values of ctx (the step execution in particular) without its deadline.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	ctx = detach(ctx)
	r.send("job_start", func(m metrics.MetricRecorder) { m.RecordJobStart(ctx, execution) })
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	ctx = detach(ctx)
	r.send("job_end", func(m metrics.MetricRecorder) { m.RecordJobEnd(ctx, execution) })
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	ctx = detach(ctx)
	r.send("step_start", func(m metrics.MetricRecorder) { m.RecordStepStart(ctx, execution) })
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	ctx = detach(ctx)
	r.send("step_end", func(m metrics.MetricRecorder) { m.RecordStepEnd(ctx, execution) })
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	ctx = detach(ctx)
	r.send("item_read", func(m metrics.MetricRecorder) { m.RecordItemRead(ctx, stepName, count) })
}

func (r *AsyncMetricRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	ctx = detach(ctx)
	r.send("item_filter", func(m metrics.MetricRecorder) { m.RecordItemFilter(ctx, stepName, count) })
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	ctx = detach(ctx)
	r.send("item_write", func(m metrics.MetricRecorder) { m.RecordItemWrite(ctx, stepName, count) })
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, stepName, phase string) {
	ctx = detach(ctx)
	r.send("item_skip", func(m metrics.MetricRecorder) { m.RecordItemSkip(ctx, stepName, phase) })
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, stepName, phase string) {
	ctx = detach(ctx)
	r.send("item_retry", func(m metrics.MetricRecorder) { m.RecordItemRetry(ctx, stepName, phase) })
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	ctx = detach(ctx)
	r.send("chunk_commit", func(m metrics.MetricRecorder) { m.RecordChunkCommit(ctx, stepName, count) })
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	ctx = detach(ctx)
	r.send("chunk_rollback", func(m metrics.MetricRecorder) { m.RecordChunkRollback(ctx, stepName) })
}

func (r *AsyncMetricRecorder) RecordPartitionEnd(ctx context.Context, stepName, partition string, status model.JobStatus) {
	ctx = detach(ctx)
	r.send("partition_end", func(m metrics.MetricRecorder) { m.RecordPartitionEnd(ctx, stepName, partition, status) })
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	ctx = detach(ctx)
	r.send("duration", func(m metrics.MetricRecorder) { m.RecordDuration(ctx, name, duration, tags) })
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
