package metrics

import (
	"context"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// Tracer opens spans around job, step and chunk boundaries.
// Every Start method returns a derived context and an end function that must be called once.
type Tracer interface {
	// StartJobSpan starts the root span of a JobExecution.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan starts a span for a StepExecution, parented to the span in ctx.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// StartChunkSpan starts a span for one chunk transaction.
	StartChunkSpan(ctx context.Context, execution *model.StepExecution, chunk int) (context.Context, func())
	// RecordError marks the span in ctx as failed.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds a named event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
