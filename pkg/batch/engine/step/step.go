// Package step holds the lifecycle shared by every step kind: start, listeners, body,
// exit status overrides, promotion to the job context and the final checkpoint.
package step

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Promotion copies step context entries into the job context once the step ends.
type Promotion struct {
	Keys []string `yaml:"keys,omitempty"`
	// JobLevelKeys renames entries: step key to job key.
	JobLevelKeys map[string]string `yaml:"jobLevelKeys,omitempty"`
}

// Instrumented is implemented by steps that accept the executor's metric recorder and
// tracer.
type Instrumented interface {
	SetMetricRecorder(metrics.MetricRecorder)
	SetTracer(metrics.Tracer)
}

// Body is the kind-specific part of a step. It returns nil on success; a stop request is
// reported as an error wrapping exception.ErrJobAborted or context.Canceled.
type Body func(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error

// Base drives a StepExecution through its lifecycle around a Body.
type Base struct {
	Name       string
	Repository repository.JobRepository
	Listeners  []port.StepExecutionListener
	Promotion  *Promotion
}

// StepName returns the step name.
func (b *Base) StepName() string { return b.Name }

// AddListener registers l after the existing listeners.
func (b *Base) AddListener(l port.StepExecutionListener) {
	b.Listeners = append(b.Listeners, l)
}

// IsStopRequest reports whether err ends a step as STOPPED rather than FAILED.
func IsStopRequest(err error) bool {
	return errors.Is(err, exception.ErrJobAborted) || errors.Is(err, context.Canceled)
}

// Run executes body with the full lifecycle and always leaves se terminal.
func (b *Base) Run(ctx context.Context, je *model.JobExecution, se *model.StepExecution, body Body) (err error) {
	se.MarkAsStarted()
	if err := b.Repository.UpdateStepExecution(ctx, se); err != nil {
		se.MarkAsFailed(err)
		return exception.NewBatchError(b.Name, "failed to mark step execution as started", err, false, false)
	}

	err = b.beforeStep(ctx, se)
	if err == nil {
		err = body(ctx, je, se)
	}

	switch {
	case err != nil && IsStopRequest(err):
		logger.Warnf("Step '%s' stopped: %v", b.Name, err)
		se.MarkAsStopped()
	case err != nil:
		logger.Errorf("Step '%s' failed: %v", b.Name, err)
		se.MarkAsFailed(err)
	case !se.Status.IsFinished():
		se.MarkAsCompleted()
	}

	// A stopped step still records its final state.
	persistCtx := context.WithoutCancel(ctx)
	b.afterStep(ctx, se)
	b.promote(persistCtx, je, se)

	if updateErr := b.Repository.UpdateStepExecution(persistCtx, se); updateErr != nil {
		logger.Errorf("Step '%s': failed to persist final state: %v", b.Name, updateErr)
		if err == nil {
			err = updateErr
		}
	}
	logger.Infof("Step '%s' finished: %s", b.Name, se.Summary())
	return err
}

func (b *Base) beforeStep(ctx context.Context, se *model.StepExecution) (err error) {
	for _, l := range b.Listeners {
		if err = safeBefore(ctx, l, se); err != nil {
			return exception.NewBatchError(b.Name, "BeforeStep listener failed", err, false, false)
		}
	}
	return nil
}

func safeBefore(ctx context.Context, l port.StepExecutionListener, se *model.StepExecution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l.BeforeStep(ctx, se)
}

func (b *Base) afterStep(ctx context.Context, se *model.StepExecution) {
	for _, l := range b.Listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Step '%s': AfterStep listener panicked: %v", b.Name, r)
				}
			}()
			if override := l.AfterStep(ctx, se); override != nil {
				logger.Debugf("Step '%s': exit status overridden from %s to %s", b.Name, se.ExitStatus.ExitCode, override.ExitCode)
				se.ExitStatus = *override
			}
		}()
	}
}

// promote writes promoted keys to the job scope of the execution-context store. Steps never
// touch je.ExecutionContext directly because split branches share it.
func (b *Base) promote(ctx context.Context, je *model.JobExecution, se *model.StepExecution) {
	if b.Promotion == nil || je == nil {
		return
	}
	scope := port.JobScope(je)
	put := func(stepKey, jobKey string) {
		v, ok := se.ExecutionContext.Get(stepKey)
		if !ok {
			return
		}
		if err := b.Repository.Put(ctx, scope, jobKey, v); err != nil {
			logger.Warnf("Step '%s': failed to promote '%s': %v", b.Name, stepKey, err)
			return
		}
		logger.Debugf("Step '%s': promoted '%s' to job context as '%s'.", b.Name, stepKey, jobKey)
	}
	for _, k := range b.Promotion.Keys {
		put(k, k)
	}
	for stepKey, jobKey := range b.Promotion.JobLevelKeys {
		put(stepKey, jobKey)
	}
}
