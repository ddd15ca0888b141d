// Package executor runs steps with tracing and metrics around them.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// SimpleStepExecutor runs a step synchronously in the caller's goroutine.
type SimpleStepExecutor struct {
	tracer   metrics.Tracer
	recorder metrics.MetricRecorder

	mu           sync.Mutex
	instrumented map[step.Instrumented]struct{}
}

// NewSimpleStepExecutor creates a SimpleStepExecutor.
func NewSimpleStepExecutor(tracer metrics.Tracer, recorder metrics.MetricRecorder) *SimpleStepExecutor {
	if tracer == nil {
		tracer = &metrics.NoOpTracer{}
	}
	if recorder == nil {
		recorder = &metrics.NoOpMetricRecorder{}
	}
	return &SimpleStepExecutor{tracer: tracer, recorder: recorder, instrumented: map[step.Instrumented]struct{}{}}
}

// ExecuteStep implements port.StepExecutor. The returned StepExecution is always terminal.
func (e *SimpleStepExecutor) ExecuteStep(ctx context.Context, s port.Step, je *model.JobExecution, se *model.StepExecution) (*model.StepExecution, error) {
	ctx, finish := e.tracer.StartStepSpan(ctx, se)
	defer finish()

	e.instrument(s)
	if se.JobExecution == nil {
		se.JobExecution = je
	}

	start := time.Now()
	e.recorder.RecordStepStart(ctx, se)
	err := e.execute(port.WithStepExecution(ctx, se), s, je, se)
	e.recorder.RecordStepEnd(ctx, se)
	e.recorder.RecordDuration(ctx, "step", time.Since(start), map[string]string{
		"step":   se.StepName,
		"status": string(se.Status),
	})

	if err != nil {
		e.tracer.RecordError(ctx, se.StepName, err)
		logger.Debugf("StepExecutor: step '%s' ended with %s: %v", se.StepName, se.Status, err)
	}
	return se, err
}

// instrument hands the recorder and tracer to s once. Partition workers may share one
// step across goroutines, so later calls only wait for the first to finish.
func (e *SimpleStepExecutor) instrument(s port.Step) {
	inst, ok := s.(step.Instrumented)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.instrumented[inst]; done {
		return
	}
	inst.SetMetricRecorder(e.recorder)
	inst.SetTracer(e.tracer)
	e.instrumented[inst] = struct{}{}
}

func (e *SimpleStepExecutor) execute(ctx context.Context, s port.Step, je *model.JobExecution, se *model.StepExecution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("StepExecutor: step '%s' panicked: %v", se.StepName, r)
			err = panicError{value: r}
			if !se.Status.IsFinished() {
				se.MarkAsFailed(err)
			}
		}
	}()
	return s.Execute(ctx, je, se)
}

type panicError struct{ value interface{} }

func (p panicError) Error() string { return fmt.Sprintf("step panicked: %v", p.value) }

// Params are the executor's dependencies.
type Params struct {
	fx.In
	Tracer   metrics.Tracer
	Recorder metrics.MetricRecorder
}

// Module provides the port.StepExecutor.
var Module = fx.Provide(
	fx.Annotate(
		func(p Params) *SimpleStepExecutor { return NewSimpleStepExecutor(p.Tracer, p.Recorder) },
		fx.As(new(port.StepExecutor)),
	),
)

var _ port.StepExecutor = (*SimpleStepExecutor)(nil)
