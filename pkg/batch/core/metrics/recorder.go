// Package metrics defines the observability abstractions used by the batch engine.
// Backends (Prometheus, OpenTelemetry) live under infrastructure/metrics; the engine only
// sees these interfaces.
package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// MetricRecorder records counters and timings for job, step and chunk events.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the terminal status and duration of a JobExecution.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the terminal status and duration of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead counts items returned by a reader.
	RecordItemRead(ctx context.Context, stepName string, count int)
	// RecordItemFilter counts items dropped by a processor.
	RecordItemFilter(ctx context.Context, stepName string, count int)
	// RecordItemWrite counts items handed to a writer.
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordItemSkip counts a skipped item. phase is "read", "process" or "write".
	RecordItemSkip(ctx context.Context, stepName, phase string)
	// RecordItemRetry counts a retried chunk operation.
	RecordItemRetry(ctx context.Context, stepName, phase string)

	// RecordChunkCommit records a committed chunk and its item count.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a rolled back chunk.
	RecordChunkRollback(ctx context.Context, stepName string)

	// RecordPartitionEnd records the outcome of a single partition worker.
	RecordPartitionEnd(ctx context.Context, stepName, partition string, status model.JobStatus)

	// RecordDuration records an arbitrary timing.
	//
	// Parameters:
	//   name: metric name, for example "reader_open".
	//   duration: the measured duration.
	//   tags: extra labels. Keys must be stable across calls for label-based backends.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
