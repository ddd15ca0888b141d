package partition

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
)

// HandlerFactory builds partition handlers over the shared pool and executor.
type HandlerFactory struct {
	Pool       port.WorkerPool
	Executor   port.StepExecutor
	Repository repository.JobRepository
}

// ForStep returns a handler that shares workerStep across partitions.
func (f *HandlerFactory) ForStep(workerStep port.Step) *TaskExecutorPartitionHandler {
	return NewTaskExecutorPartitionHandler(workerStep, f.Pool, f.Executor, f.Repository)
}

// ForProvider returns a handler that builds one worker step per partition.
func (f *HandlerFactory) ForProvider(workers StepProvider) *TaskExecutorPartitionHandler {
	return NewTaskExecutorPartitionHandlerFunc(workers, f.Pool, f.Executor, f.Repository)
}

// HandlerFactoryParams are the dependencies of a HandlerFactory.
type HandlerFactoryParams struct {
	fx.In
	Pool       port.WorkerPool
	Executor   port.StepExecutor
	Repository repository.JobRepository
}

// Module provides the HandlerFactory used by job definitions with partitioned steps.
var Module = fx.Provide(func(p HandlerFactoryParams) *HandlerFactory {
	return &HandlerFactory{Pool: p.Pool, Executor: p.Executor, Repository: p.Repository}
})
