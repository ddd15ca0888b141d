package port

import (
	"context"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

type stepExecutionKey struct{}

// WithStepExecution returns a context carrying se, for components that need step state.
func WithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, stepExecutionKey{}, se)
}

// StepExecutionFromContext returns the StepExecution stored by WithStepExecution.
func StepExecutionFromContext(ctx context.Context) (*model.StepExecution, bool) {
	se, ok := ctx.Value(stepExecutionKey{}).(*model.StepExecution)
	return se, ok
}
