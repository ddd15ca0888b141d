package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards everything. Used when metrics are disabled and in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder { return &NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)                 {}
func (NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution)                   {}
func (NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution)               {}
func (NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution)                 {}
func (NoOpMetricRecorder) RecordItemRead(context.Context, string, int)                         {}
func (NoOpMetricRecorder) RecordItemFilter(context.Context, string, int)                       {}
func (NoOpMetricRecorder) RecordItemWrite(context.Context, string, int)                        {}
func (NoOpMetricRecorder) RecordItemSkip(context.Context, string, string)                      {}
func (NoOpMetricRecorder) RecordItemRetry(context.Context, string, string)                     {}
func (NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int)                      {}
func (NoOpMetricRecorder) RecordChunkRollback(context.Context, string)                         {}
func (NoOpMetricRecorder) RecordPartitionEnd(context.Context, string, string, model.JobStatus) {}
func (NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer returns the incoming context unchanged.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() Tracer { return &NoOpTracer{} }

func (NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartChunkSpan(ctx context.Context, _ *model.StepExecution, _ int) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) RecordError(context.Context, string, error)                  {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
