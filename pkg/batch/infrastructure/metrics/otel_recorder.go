package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
)

// instrumentationName is the scope name used for meters and tracers.
const instrumentationName = "github.com/tigerroll/chunkflow"

// OtelMetricRecorder records batch metrics through an OpenTelemetry meter.
type OtelMetricRecorder struct {
	jobDuration   metric.Float64Histogram
	jobEnds       metric.Int64Counter
	stepDuration  metric.Float64Histogram
	items         metric.Int64Counter
	skips         metric.Int64Counter
	retries       metric.Int64Counter
	commits       metric.Int64Counter
	rollbacks     metric.Int64Counter
	partitionEnds metric.Int64Counter
	timings       metric.Float64Histogram
}

// NewOtelMetricRecorder creates the instruments on meter.
// Instrument errors are ignored: the API hands back no-op instruments in that case.
func NewOtelMetricRecorder(meter metric.Meter) *OtelMetricRecorder {
	r := &OtelMetricRecorder{}
	r.jobDuration, _ = meter.Float64Histogram("batch.job.duration",
		metric.WithDescription("Duration of job executions"), metric.WithUnit("s"))
	r.jobEnds, _ = meter.Int64Counter("batch.job.executions",
		metric.WithDescription("Finished job executions"), metric.WithUnit("{execution}"))
	r.stepDuration, _ = meter.Float64Histogram("batch.step.duration",
		metric.WithDescription("Duration of step executions"), metric.WithUnit("s"))
	r.items, _ = meter.Int64Counter("batch.items",
		metric.WithDescription("Items read, filtered or written"), metric.WithUnit("{item}"))
	r.skips, _ = meter.Int64Counter("batch.item.skips",
		metric.WithDescription("Skipped items"), metric.WithUnit("{item}"))
	r.retries, _ = meter.Int64Counter("batch.item.retries",
		metric.WithDescription("Retried chunk operations"), metric.WithUnit("{retry}"))
	r.commits, _ = meter.Int64Counter("batch.chunk.commits",
		metric.WithDescription("Committed chunks"), metric.WithUnit("{chunk}"))
	r.rollbacks, _ = meter.Int64Counter("batch.chunk.rollbacks",
		metric.WithDescription("Rolled back chunks"), metric.WithUnit("{chunk}"))
	r.partitionEnds, _ = meter.Int64Counter("batch.partition.executions",
		metric.WithDescription("Finished partition workers"), metric.WithUnit("{partition}"))
	r.timings, _ = meter.Float64Histogram("batch.operation.duration",
		metric.WithDescription("Timings recorded through RecordDuration"), metric.WithUnit("s"))
	return r
}

func (r *OtelMetricRecorder) RecordJobStart(context.Context, *model.JobExecution) {}

func (r *OtelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", string(execution.Status)),
	)
	r.jobEnds.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OtelMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}

func (r *OtelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), metric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", string(execution.Status)),
	))
}

func (r *OtelMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "read")))
}

func (r *OtelMetricRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "filter")))
}

func (r *OtelMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "write")))
}

func (r *OtelMetricRecorder) RecordItemSkip(ctx context.Context, stepName, phase string) {
	r.skips.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("phase", phase)))
}

func (r *OtelMetricRecorder) RecordItemRetry(ctx context.Context, stepName, phase string) {
	r.retries.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("phase", phase)))
}

func (r *OtelMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, _ int) {
	r.commits.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OtelMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.rollbacks.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OtelMetricRecorder) RecordPartitionEnd(ctx context.Context, stepName, partition string, status model.JobStatus) {
	r.partitionEnds.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step_name", stepName),
		attribute.String("partition", partition),
		attribute.String("status", string(status)),
	))
}

func (r *OtelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.timings.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job_name", jobNameFrom(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

var _ metrics.MetricRecorder = (*OtelMetricRecorder)(nil)
