// Package port defines the capabilities the batch engine consumes (readers, processors,
// writers, worker pools, execution-context stores, listeners) and the shapes of the
// executable units it composes (jobs, flows, steps).
package port

import (
	"context"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// ItemReader reads items one at a time.
type ItemReader[T any] interface {
	// Read returns the next item.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   T: The item read. Meaningless when hasMore is false.
	//   bool: false signals end-of-data; no item was returned.
	//   error: A read failure. End-of-data is never reported as an error.
	Read(ctx context.Context) (T, bool, error)
}

// ItemProcessor transforms or filters one item.
type ItemProcessor[I, O any] interface {
	// Process transforms item.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The item to process.
	//
	// Returns:
	//   O: The transformed item. Ignored when filtered is true.
	//   bool: true drops the item from the chunk without error.
	//   error: A processing failure; it rolls back the chunk.
	Process(ctx context.Context, item I) (O, bool, error)
}

// ItemProcessorFunc adapts a plain function to ItemProcessor.
type ItemProcessorFunc[I, O any] func(ctx context.Context, item I) (O, bool, error)

// Process calls f.
func (f ItemProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, bool, error) {
	return f(ctx, item)
}

// ItemWriter writes a whole chunk at once.
type ItemWriter[T any] interface {
	// Write persists items in order. It must be atomic with respect to its backing store,
	// typically by joining the transaction found in ctx (see tx.FromContext).
	//
	// Parameters:
	//   ctx: The context carrying the chunk's unit-of-work.
	//   items: The non-empty, ordered chunk.
	//
	// Returns:
	//   error: A write failure; it rolls back the chunk.
	Write(ctx context.Context, items []T) error
}

// ItemWriterFunc adapts a plain function to ItemWriter.
type ItemWriterFunc[T any] func(ctx context.Context, items []T) error

// Write calls f.
func (f ItemWriterFunc[T]) Write(ctx context.Context, items []T) error { return f(ctx, items) }

// ItemStream is implemented by readers and writers that hold resources or restart state.
type ItemStream interface {
	// Open acquires resources and restores position from ec.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Update writes the current position into ec. It is called after every commit.
	Update(ctx context.Context, ec model.ExecutionContext) error
	// Close releases resources.
	Close(ctx context.Context) error
}

// Tasklet is a single callable step body.
type Tasklet interface {
	// Execute runs the tasklet to completion.
	//
	// Parameters:
	//   ctx: The context for the operation; cancelled on stop.
	//   stepExecution: The StepExecution being run.
	//
	// Returns:
	//   model.ExitStatus: The exit status of the step.
	//   error: A failure, which marks the step FAILED.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
}

// TaskletFunc adapts a plain function to Tasklet.
type TaskletFunc func(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)

// Execute calls f.
func (f TaskletFunc) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, se)
}

// Step is one stage of a job.
type Step interface {
	// StepName returns the step's name, unique within its job.
	StepName() string
	// Execute runs the step against stepExecution, driving its lifecycle to a terminal state.
	//
	// Parameters:
	//   ctx: The context for the operation; cancellation is a stop request.
	//   jobExecution: The owning JobExecution (read-only for the step).
	//   stepExecution: The StepExecution to drive.
	//
	// Returns:
	//   error: The failure that ended the step, if any. The StepExecution status is
	//   always set, whether or not an error is returned.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// StepExecutor runs a step, adding cross-cutting concerns such as tracing and metrics.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step Step, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (*model.StepExecution, error)
}

// FlowExecution is the outcome of running a Flow.
type FlowExecution struct {
	// Status is the worst batch status among the flow's steps.
	Status model.JobStatus
	// ExitStatus is the flow's exit status, possibly overridden by listeners.
	ExitStatus model.ExitStatus
	// StepExecutions lists the step executions the flow created, in completion order.
	StepExecutions []*model.StepExecution
}

// Flow is an executable sequence of job elements.
type Flow interface {
	// FlowName returns the flow's name.
	FlowName() string
	// Execute runs the flow. It must not mutate jobExecution; created StepExecutions are
	// reported through the returned FlowExecution.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The owning JobExecution (read-only).
	//
	// Returns:
	//   *FlowExecution: The flow outcome. Always non-nil.
	//   error: The failure that ended the flow, if any.
	Execute(ctx context.Context, jobExecution *model.JobExecution) (*FlowExecution, error)
}

// Job is a launchable unit of batch work.
type Job interface {
	// JobName returns the job's logical name.
	JobName() string
	// Run drives jobExecution to a terminal state.
	Run(ctx context.Context, jobExecution *model.JobExecution) error
	// Validator returns the parameters validator, or nil.
	Validator() JobParametersValidator
	// Incrementer returns the run-identity incrementer, or nil.
	Incrementer() JobParametersIncrementer
}

// JobParametersValidator checks parameters before an execution is created.
type JobParametersValidator interface {
	// Validate returns nil or an *exception.ValidationError naming the offending parameter.
	Validate(params model.JobParameters) error
}

// JobParametersIncrementer derives the parameters of the next run.
type JobParametersIncrementer interface {
	// GetNext returns previous with a fresh run discriminator.
	//
	// Parameters:
	//   previous: The parameters of the job's most recent instance, or empty.
	//
	// Returns:
	//   model.JobParameters: The parameters for the next instance.
	GetNext(previous model.JobParameters) model.JobParameters
}

// Partitioner splits a step's work into independent partitions.
type Partitioner interface {
	// Partition returns one ExecutionContext per partition, keyed by partition name.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   gridSize: The requested number of partitions.
	//
	// Returns:
	//   map[string]model.ExecutionContext: Partition name to its input context.
	//   error: A failure creating partitions.
	Partition(ctx context.Context, gridSize int) (map[string]model.ExecutionContext, error)
}

// PartitionHandler runs worker steps for a set of partitions and waits for all of them.
type PartitionHandler interface {
	// Handle runs one worker per partition.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The owning JobExecution.
	//   controller: The controller StepExecution.
	//   partitions: The partitioner output.
	//
	// Returns:
	//   []*model.StepExecution: One terminal StepExecution per dispatched partition.
	//   error: A dispatch failure. Worker failures are reported through the returned
	//   StepExecutions, not here.
	Handle(ctx context.Context, jobExecution *model.JobExecution, controller *model.StepExecution, partitions map[string]model.ExecutionContext) ([]*model.StepExecution, error)
}

// Task is a unit of work submitted to a WorkerPool.
type Task func(ctx context.Context) (interface{}, error)

// Result is the outcome of a Task.
type Result struct {
	Value interface{}
	Err   error
}

// Handle tracks a submitted Task.
type Handle interface {
	// Done is closed when the task has finished.
	Done() <-chan struct{}
	// Result returns the task outcome. It blocks until Done is closed.
	Result() Result
}

// WorkerPool executes tasks concurrently.
type WorkerPool interface {
	// Submit schedules task. It blocks while a bounded pool is saturated and fails if ctx
	// ends first.
	Submit(ctx context.Context, task Task) (Handle, error)
	// AwaitAll blocks until every handle is done and returns results in handle order.
	AwaitAll(handles []Handle) []Result
}

// ScopeKind names the owner of an execution-context entry.
type ScopeKind string

const (
	ScopeJob  ScopeKind = "JOB"
	ScopeStep ScopeKind = "STEP"
)

// Scope identifies the execution an execution-context entry belongs to.
type Scope struct {
	Kind        ScopeKind
	ExecutionID string
}

// JobScope returns the job-level scope of je.
func JobScope(je *model.JobExecution) Scope {
	return Scope{Kind: ScopeJob, ExecutionID: je.ID}
}

// StepScope returns the step-level scope of se.
func StepScope(se *model.StepExecution) Scope {
	return Scope{Kind: ScopeStep, ExecutionID: se.ID}
}

// ExecutionContextStore is a key-value store scoped per job or step execution. Puts from
// concurrent writers are serialized; writers must use distinct keys.
type ExecutionContextStore interface {
	Get(ctx context.Context, scope Scope, key string) (interface{}, bool, error)
	Put(ctx context.Context, scope Scope, key string, value interface{}) error
	// Snapshot returns a copy of every entry in scope.
	Snapshot(ctx context.Context, scope Scope) (model.ExecutionContext, error)
}

// JobExecutionListener observes job lifecycle transitions.
type JobExecutionListener interface {
	// BeforeJob runs before the job is STARTED. Errors are logged only.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution) error
	// AfterJob runs after the job reached a terminal status. Errors are logged only.
	AfterJob(ctx context.Context, jobExecution *model.JobExecution) error
}

// StepExecutionListener observes step lifecycle transitions.
type StepExecutionListener interface {
	// BeforeStep runs before the step body. An error fails the step.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution) error
	// AfterStep runs after the step body. A non-nil result replaces the step's exit status.
	AfterStep(ctx context.Context, stepExecution *model.StepExecution) *model.ExitStatus
}

// ChunkListener observes chunk boundaries.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// SkipListener is notified of skipped items.
type SkipListener interface {
	OnSkipInRead(ctx context.Context, err error)
	OnSkipInProcess(ctx context.Context, item interface{}, err error)
	OnSkipInWrite(ctx context.Context, item interface{}, err error)
}

// RetryListener is notified before each retry attempt.
type RetryListener interface {
	OnRetry(ctx context.Context, attempt int, err error)
}
