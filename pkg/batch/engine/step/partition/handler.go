package partition

import (
	"context"
	"fmt"
	"sort"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// StepProvider returns the step a worker runs for one partition. Steps holding per-run
// state, such as a chunk step and its reader, need one instance per partition.
type StepProvider func(partition string, ec model.ExecutionContext) (port.Step, error)

// TaskExecutorPartitionHandler runs each partition as a task on a worker pool.
type TaskExecutorPartitionHandler struct {
	workers    StepProvider
	pool       port.WorkerPool
	executor   port.StepExecutor
	repository repository.JobRepository
}

var _ port.PartitionHandler = (*TaskExecutorPartitionHandler)(nil)

// NewTaskExecutorPartitionHandler shares one stateless worker step across partitions.
func NewTaskExecutorPartitionHandler(workerStep port.Step, pool port.WorkerPool, executor port.StepExecutor, repo repository.JobRepository) *TaskExecutorPartitionHandler {
	return NewTaskExecutorPartitionHandlerFunc(func(string, model.ExecutionContext) (port.Step, error) {
		return workerStep, nil
	}, pool, executor, repo)
}

// NewTaskExecutorPartitionHandlerFunc builds a fresh worker step for every partition.
func NewTaskExecutorPartitionHandlerFunc(workers StepProvider, pool port.WorkerPool, executor port.StepExecutor, repo repository.JobRepository) *TaskExecutorPartitionHandler {
	return &TaskExecutorPartitionHandler{workers: workers, pool: pool, executor: executor, repository: repo}
}

// Handle implements port.PartitionHandler. Every worker StepExecution is saved before the
// first dispatch. Once ctx is cancelled no further partition is dispatched; those left
// behind are recorded as STOPPED. The returned slice holds every partition in name order.
func (h *TaskExecutorPartitionHandler) Handle(ctx context.Context, je *model.JobExecution, controller *model.StepExecution, partitions map[string]model.ExecutionContext) ([]*model.StepExecution, error) {
	names := make([]string, 0, len(partitions))
	for name := range partitions {
		names = append(names, name)
	}
	sort.Strings(names)

	workers := make([]*model.StepExecution, len(names))
	for i, name := range names {
		se := model.NewStepExecution(WorkerStepName(controller.StepName, name), je)
		se.ExecutionContext = partitions[name].Copy()
		if err := h.repository.SaveStepExecution(ctx, se); err != nil {
			return nil, fmt.Errorf("failed to save step execution for %s: %w", se.StepName, err)
		}
		workers[i] = se
	}

	handles := make([]port.Handle, 0, len(workers))
	var dispatchErr error
	for i, se := range workers {
		s, err := h.workers(names[i], se.ExecutionContext)
		if err != nil {
			dispatchErr = fmt.Errorf("failed to build worker step for %s: %w", se.StepName, err)
			h.abandon(ctx, workers[i:], dispatchErr)
			break
		}
		worker := se
		handle, err := h.pool.Submit(ctx, func(taskCtx context.Context) (interface{}, error) {
			return h.executor.ExecuteStep(taskCtx, s, je, worker)
		})
		if err != nil {
			dispatchErr = err
			logger.Warnf("Partition dispatch for '%s' halted at %s: %v", controller.StepName, names[i], err)
			h.abandon(ctx, workers[i:], err)
			break
		}
		handles = append(handles, handle)
	}

	for i, res := range h.pool.AwaitAll(handles) {
		se := workers[i]
		if se.Status.IsFinished() {
			continue
		}
		// The executor always finishes the execution; an unfinished one means the task
		// never reached it.
		if res.Err != nil {
			se.MarkAsFailed(res.Err)
		} else {
			se.MarkAsFailed(fmt.Errorf("worker %s returned without finishing", se.StepName))
		}
		h.update(ctx, se)
	}
	return workers, dispatchErr
}

func (h *TaskExecutorPartitionHandler) abandon(ctx context.Context, left []*model.StepExecution, cause error) {
	for _, se := range left {
		if step.IsStopRequest(cause) {
			se.MarkAsStopped()
		} else {
			se.MarkAsFailed(cause)
		}
		h.update(ctx, se)
	}
}

func (h *TaskExecutorPartitionHandler) update(ctx context.Context, se *model.StepExecution) {
	if err := h.repository.UpdateStepExecution(context.WithoutCancel(ctx), se); err != nil {
		logger.Errorf("Failed to update step execution %s: %v", se.StepName, err)
	}
}
