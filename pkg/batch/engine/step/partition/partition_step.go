// Package partition fans one step out over independently executed partitions and folds
// the workers back into a single controller StepExecution.
package partition

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// PartitionStep is the controller step of a partitioned step.
type PartitionStep struct {
	step.Base
	partitioner port.Partitioner
	handler     port.PartitionHandler
	gridSize    int
	recorder    metrics.MetricRecorder
}

var (
	_ port.Step         = (*PartitionStep)(nil)
	_ step.Instrumented = (*PartitionStep)(nil)
)

// NewPartitionStep creates a PartitionStep.
func NewPartitionStep(
	name string,
	partitioner port.Partitioner,
	handler port.PartitionHandler,
	gridSize int,
	repo repository.JobRepository,
	listeners []port.StepExecutionListener,
	promotion *step.Promotion,
) *PartitionStep {
	if partitioner == nil {
		partitioner = NewSimplePartitioner()
	}
	return &PartitionStep{
		Base:        step.Base{Name: name, Repository: repo, Listeners: listeners, Promotion: promotion},
		partitioner: partitioner,
		handler:     handler,
		gridSize:    gridSize,
		recorder:    &metrics.NoOpMetricRecorder{},
	}
}

// GridSize returns the requested number of partitions.
func (s *PartitionStep) GridSize() int { return s.gridSize }

// SetMetricRecorder implements step.Instrumented.
func (s *PartitionStep) SetMetricRecorder(r metrics.MetricRecorder) {
	if r != nil {
		s.recorder = r
	}
}

// SetTracer implements step.Instrumented. Worker spans come from the worker executor.
func (s *PartitionStep) SetTracer(metrics.Tracer) {}

// Execute implements port.Step.
func (s *PartitionStep) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	return s.Run(ctx, je, se, s.run)
}

func (s *PartitionStep) run(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	partitions, err := s.partitioner.Partition(ctx, s.gridSize)
	if err != nil {
		return exception.NewBatchError(s.Name, "failed to create partitions", err, false, false)
	}
	logger.Infof("Step '%s' dispatching %d partitions.", s.Name, len(partitions))

	workers, dispatchErr := s.handler.Handle(ctx, je, se, partitions)
	if dispatchErr != nil && len(workers) == 0 {
		return dispatchErr
	}
	return s.aggregate(ctx, je, se, workers, dispatchErr)
}

// aggregate folds the workers into se and returns the error that decides its status.
func (s *PartitionStep) aggregate(ctx context.Context, je *model.JobExecution, se *model.StepExecution, workers []*model.StepExecution, dispatchErr error) error {
	status := model.BatchStatusCompleted
	failures := &multierror.Error{ErrorFormat: oneLine}

	for _, w := range workers {
		partition := Name(se.StepName, w.StepName)
		se.ReadCount += w.ReadCount
		se.WriteCount += w.WriteCount
		se.CommitCount += w.CommitCount
		se.RollbackCount += w.RollbackCount
		se.FilterCount += w.FilterCount
		se.ReadSkipCount += w.ReadSkipCount
		se.ProcessSkipCount += w.ProcessSkipCount
		se.WriteSkipCount += w.WriteSkipCount
		se.ExecutionContext.Merge(partition, w.ExecutionContext)
		s.recorder.RecordPartitionEnd(ctx, se.StepName, partition, w.Status)

		switch w.Status {
		case model.BatchStatusCompleted:
		case model.BatchStatusStopped:
			status = status.Upgrade(model.BatchStatusStopped)
		default:
			status = status.Upgrade(model.BatchStatusFailed)
			cause := w.Err()
			if cause == nil {
				cause = fmt.Errorf("ended with status %s", w.Status)
			}
			failures = multierror.Append(failures, &exception.PartitionFailure{
				Step:       se.StepName,
				Partition:  partition,
				ReadCount:  w.ReadCount,
				WriteCount: w.WriteCount,
				Err:        cause,
			})
		}
	}
	if dispatchErr != nil && !step.IsStopRequest(dispatchErr) {
		status = status.Upgrade(model.BatchStatusFailed)
		failures = multierror.Append(failures, dispatchErr)
	}

	switch status {
	case model.BatchStatusFailed:
		return failures.ErrorOrNil()
	case model.BatchStatusStopped:
		cause := dispatchErr
		if cause == nil {
			cause = context.Canceled
		}
		return &exception.JobAbortError{JobName: je.JobName, ExecutionID: je.ID, Err: cause}
	}
	return nil
}

func oneLine(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d partition(s) failed: %s", len(errs), strings.Join(parts, "; "))
}
