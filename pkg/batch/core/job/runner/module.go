package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
)

// Builder creates flows and jobs wired to the shared executor, repository and
// observability components.
type Builder struct {
	Executor   port.StepExecutor
	Repository repository.JobRepository
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
}

// Flow returns an empty SimpleFlow.
func (b *Builder) Flow(name string) *SimpleFlow {
	return NewSimpleFlow(name, b.Executor, b.Repository)
}

// Job returns a FlowJob over flow. opts are applied after the builder's defaults.
func (b *Builder) Job(name string, flow port.Flow, opts ...JobOption) *FlowJob {
	defaults := []JobOption{WithMetricRecorder(b.Recorder), WithTracer(b.Tracer)}
	return NewFlowJob(name, flow, b.Repository, append(defaults, opts...)...)
}

// BuilderParams are the Builder's dependencies.
type BuilderParams struct {
	fx.In
	Executor   port.StepExecutor
	Repository repository.JobRepository
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
}

// NewBuilder creates a Builder.
func NewBuilder(p BuilderParams) *Builder {
	return &Builder{Executor: p.Executor, Repository: p.Repository, Recorder: p.Recorder, Tracer: p.Tracer}
}

// Module provides the Builder.
var Module = fx.Provide(NewBuilder)
