package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
)

// OtelTracer opens OpenTelemetry spans for jobs, steps and chunks.
// Job and step spans get their status from the execution when they end.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates an OtelTracer on tracer.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

func (t *OtelTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.job "+execution.JobName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.job.name", execution.JobName),
			attribute.String("batch.job.execution_id", execution.ID),
			attribute.String("batch.job.instance_id", execution.JobInstanceID),
		),
	)
	return ctx, func() {
		endSpan(span, execution.Status, execution.ExitStatus)
	}
}

func (t *OtelTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.step "+execution.StepName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.step.name", execution.StepName),
			attribute.String("batch.step.execution_id", execution.ID),
		),
	)
	return ctx, func() {
		span.SetAttributes(
			attribute.Int("batch.step.read_count", execution.ReadCount),
			attribute.Int("batch.step.write_count", execution.WriteCount),
			attribute.Int("batch.step.commit_count", execution.CommitCount),
			attribute.Int("batch.step.rollback_count", execution.RollbackCount),
		)
		endSpan(span, execution.Status, execution.ExitStatus)
	}
}

func (t *OtelTracer) StartChunkSpan(ctx context.Context, execution *model.StepExecution, chunk int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.chunk",
		trace.WithAttributes(
			attribute.String("batch.step.name", execution.StepName),
			attribute.Int("batch.chunk.index", chunk),
		),
	)
	return ctx, func() { span.End() }
}

func (t *OtelTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

func (t *OtelTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, toAttribute(k, v))
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, status model.JobStatus, exit model.ExitStatus) {
	span.SetAttributes(
		attribute.String("batch.status", string(status)),
		attribute.String("batch.exit_code", exit.ExitCode),
	)
	if status.IsUnsuccessful() {
		span.SetStatus(codes.Error, exit.ExitDescription)
	} else if status == model.BatchStatusCompleted {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func toAttribute(key string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case bool:
		return attribute.Bool(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

var _ metrics.Tracer = (*OtelTracer)(nil)
