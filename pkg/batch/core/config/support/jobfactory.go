// Package support turns parsed job definitions into runnable jobs. Components named in a
// definition are resolved through a ComponentRegistry populated by the application.
package support

import (
	"fmt"
	"time"

	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkflow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	incrementer "github.com/tigerroll/chunkflow/pkg/batch/core/job/incrementer"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/split"
	validator "github.com/tigerroll/chunkflow/pkg/batch/core/job/validator"
	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/partition"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/tasklet"
	configbinder "github.com/tigerroll/chunkflow/pkg/batch/support/util/configbinder"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// JobFactory builds FlowJobs from job definitions.
type JobFactory struct {
	cfg        *config.Config
	registry   *ComponentRegistry
	builder    *runner.Builder
	splits     *split.Factory
	partitions *partition.HandlerFactory
	repository repository.JobRepository
	txResolver tx.ManagerResolver
}

// JobFactoryParams are the JobFactory's dependencies. TxResolver is optional; without it
// every chunk and tasklet step runs resourceless.
type JobFactoryParams struct {
	fx.In
	Config     *config.Config
	Registry   *ComponentRegistry
	Builder    *runner.Builder
	Splits     *split.Factory
	Partitions *partition.HandlerFactory
	Repository repository.JobRepository
	TxResolver tx.ManagerResolver `optional:"true"`
}

// NewJobFactory creates a JobFactory.
func NewJobFactory(p JobFactoryParams) *JobFactory {
	return &JobFactory{
		cfg:        p.Config,
		registry:   p.Registry,
		builder:    p.Builder,
		splits:     p.Splits,
		partitions: p.Partitions,
		repository: p.Repository,
		txResolver: p.TxResolver,
	}
}

// Registry returns the registry the factory resolves references against.
func (f *JobFactory) Registry() *ComponentRegistry { return f.registry }

// BuildAll builds every job in defs, in file order.
func (f *JobFactory) BuildAll(defs *jsl.Definitions) ([]port.Job, error) {
	jobs := make([]port.Job, 0, len(defs.Names()))
	for _, name := range defs.Names() {
		def, _ := defs.Get(name)
		job, err := f.Build(def)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Build builds one job. Every component reference is resolved here, so a job that builds
// successfully cannot fail later on an unknown reference.
func (f *JobFactory) Build(def jsl.Job) (*runner.FlowJob, error) {
	if err := jsl.Validate(def); err != nil {
		return nil, err
	}
	flow, err := f.buildFlow(def.Name, def.Flow)
	if err != nil {
		return nil, err
	}

	var opts []runner.JobOption
	for _, ref := range def.Listeners {
		l, err := f.listener(ref)
		if err != nil {
			return nil, f.wrap(def.Name, err)
		}
		jl, ok := l.(port.JobExecutionListener)
		if !ok {
			return nil, exception.NewBatchErrorf("jobfactory", "job '%s': listener '%s' is not a job execution listener", def.Name, ref.Ref)
		}
		opts = append(opts, runner.WithJobListener(jl))
	}
	if def.Incrementer != nil {
		inc, err := f.incrementer(*def.Incrementer)
		if err != nil {
			return nil, f.wrap(def.Name, err)
		}
		opts = append(opts, runner.WithIncrementer(inc))
	}
	if len(def.Validators) > 0 {
		validators := make([]port.JobParametersValidator, 0, len(def.Validators))
		for _, ref := range def.Validators {
			v, err := f.validator(ref)
			if err != nil {
				return nil, f.wrap(def.Name, err)
			}
			validators = append(validators, v)
		}
		opts = append(opts, runner.WithValidator(validator.NewCompositeValidator(validators...)))
	}

	logger.Infof("JobFactory: built job '%s'.", def.Name)
	return f.builder.Job(def.Name, flow, opts...), nil
}

func (f *JobFactory) wrap(jobName string, err error) error {
	return exception.NewBatchError("jobfactory", fmt.Sprintf("job '%s'", jobName), err, false, false)
}

func (f *JobFactory) buildFlow(jobName string, def jsl.Flow) (port.Flow, error) {
	name := def.Name
	if name == "" {
		name = jobName
	}
	flow := f.builder.Flow(name)
	for i, el := range def.Elements {
		switch {
		case el.Step != nil:
			s, err := f.buildStep(el.Step)
			if err != nil {
				return nil, f.wrap(jobName, err)
			}
			flow.AddStep(s, el.Step.Transitions...)
		case el.Split != nil:
			flows := make([]port.Flow, 0, len(el.Split.Flows))
			for j, fd := range el.Split.Flows {
				if fd.Name == "" {
					fd.Name = fmt.Sprintf("%s.flow%d", el.Split.Name, j)
				}
				sub, err := f.buildFlow(jobName, fd)
				if err != nil {
					return nil, err
				}
				flows = append(flows, sub)
			}
			flow.AddFlow(f.splits.New(el.Split.Name, flows...), el.Split.Transitions...)
		case el.Decision != nil:
			d, err := f.decider(el.Decision.Decider)
			if err != nil {
				return nil, f.wrap(jobName, err)
			}
			flow.AddDecider(el.Decision.Name, d, el.Decision.Transitions...)
		default:
			return nil, exception.NewBatchErrorf("jobfactory", "job '%s': element %d is empty", jobName, i)
		}
	}
	if err := flow.Validate(); err != nil {
		return nil, f.wrap(jobName, err)
	}
	return flow, nil
}

func (f *JobFactory) buildStep(def *jsl.Step) (port.Step, error) {
	if def.Partition == nil {
		return f.buildWorker(def.Name, def)
	}

	var (
		partitioner port.Partitioner
		err         error
	)
	ref := def.Partition.Partitioner
	switch {
	case ref == nil:
		partitioner = partition.NewSimplePartitioner()
	default:
		if b, lookupErr := f.registry.Partitioner(ref.Ref); lookupErr == nil {
			partitioner, err = b(f.cfg, ref.Properties)
		} else {
			partitioner, err = partition.NewPartitioner(ref.Ref, ref.Properties)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("step '%s': %w", def.Name, err)
	}

	gridSize := def.Partition.GridSize
	if gridSize < 1 {
		gridSize = f.cfg.Chunkflow.Batch.GridSize
	}

	// Build one worker up front so configuration errors surface at build time.
	if _, err := f.buildWorker(def.Name, def); err != nil {
		return nil, err
	}
	workers := func(name string, _ model.ExecutionContext) (port.Step, error) {
		return f.buildWorker(partition.WorkerStepName(def.Name, name), def)
	}

	stepListeners, err := f.stepListeners(def)
	if err != nil {
		return nil, err
	}
	return partition.NewPartitionStep(def.Name, partitioner, f.partitions.ForProvider(workers), gridSize, f.repository, stepListeners, def.Promotion), nil
}

// buildWorker builds the chunk or tasklet step described by def under name.
func (f *JobFactory) buildWorker(name string, def *jsl.Step) (port.Step, error) {
	if def.Tasklet != nil {
		return f.buildTaskletStep(name, def)
	}
	return f.buildChunkStep(name, def)
}

func (f *JobFactory) buildTaskletStep(name string, def *jsl.Step) (port.Step, error) {
	b, err := f.registry.Tasklet(def.Tasklet.Ref)
	if err != nil {
		return nil, fmt.Errorf("step '%s': %w", def.Name, err)
	}
	t, err := b(f.cfg, def.Tasklet.Properties)
	if err != nil {
		return nil, fmt.Errorf("step '%s': tasklet '%s': %w", def.Name, def.Tasklet.Ref, err)
	}
	listeners, err := f.stepListeners(def)
	if err != nil {
		return nil, err
	}
	txm, err := f.transactionManager("")
	if err != nil {
		return nil, err
	}
	return tasklet.NewTaskletStep(name, t, f.repository, txm, listeners, f.workerPromotion(def)).
		WithIsolationLevel(def.IsolationLevel), nil
}

func (f *JobFactory) buildChunkStep(name string, def *jsl.Step) (port.Step, error) {
	chunk := def.Chunk

	rb, err := f.registry.Reader(def.Reader.Ref)
	if err != nil {
		return nil, fmt.Errorf("step '%s': %w", def.Name, err)
	}
	reader, err := rb(f.cfg, def.Reader.Properties)
	if err != nil {
		return nil, fmt.Errorf("step '%s': reader '%s': %w", def.Name, def.Reader.Ref, err)
	}

	var processor port.ItemProcessor[any, any]
	if def.Processor != nil {
		pb, err := f.registry.Processor(def.Processor.Ref)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", def.Name, err)
		}
		if processor, err = pb(f.cfg, def.Processor.Properties); err != nil {
			return nil, fmt.Errorf("step '%s': processor '%s': %w", def.Name, def.Processor.Ref, err)
		}
	}

	wb, err := f.registry.Writer(def.Writer.Ref)
	if err != nil {
		return nil, fmt.Errorf("step '%s': %w", def.Name, err)
	}
	writer, err := wb(f.cfg, def.Writer.Properties)
	if err != nil {
		return nil, fmt.Errorf("step '%s': writer '%s': %w", def.Name, def.Writer.Ref, err)
	}

	commitInterval := chunk.CommitInterval
	if commitInterval < 1 {
		commitInterval = f.cfg.Chunkflow.Batch.ChunkSize
	}

	opts := []item.Option{
		item.WithRetryPolicy(f.retryPolicy(chunk.Retry)),
		item.WithSkipPolicy(f.skipPolicy(chunk.Skip)),
		item.WithPromotion(f.workerPromotion(def)),
		item.WithMetricRecorder(f.builder.Recorder),
		item.WithTracer(f.builder.Tracer),
	}
	for _, ref := range def.Listeners {
		l, err := f.listener(ref)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", def.Name, err)
		}
		opts = append(opts, item.WithListener(l))
	}

	txm, err := f.transactionManager(chunk.TransactionManager)
	if err != nil {
		return nil, fmt.Errorf("step '%s': %w", def.Name, err)
	}
	return item.NewChunkStep(name, reader, processor, writer, commitInterval, f.repository, txm, opts...), nil
}

// workerPromotion returns the promotion of a plain step. Partition workers never promote;
// the controller promotes from its aggregated context instead.
func (f *JobFactory) workerPromotion(def *jsl.Step) *step.Promotion {
	if def.Partition != nil {
		return nil
	}
	return def.Promotion
}

func (f *JobFactory) retryPolicy(def *jsl.RetryLimit) retry.Policy {
	if def == nil {
		return retry.FromConfig(f.cfg.Chunkflow.Batch.ItemRetry)
	}
	return retry.NewSimplePolicy(def.MaxAttempts, time.Duration(def.BackoffMs)*time.Millisecond, def.Exceptions)
}

func (f *JobFactory) skipPolicy(def *jsl.SkipLimit) skip.Policy {
	if def == nil {
		return skip.FromConfig(f.cfg.Chunkflow.Batch.ItemSkip)
	}
	return skip.NewLimitPolicy(def.Limit, def.Exceptions)
}

func (f *JobFactory) transactionManager(name string) (tx.TransactionManager, error) {
	if name == "" || f.txResolver == nil {
		if name != "" {
			return nil, exception.NewBatchErrorf("jobfactory", "transaction manager '%s' requested but no database is configured", name)
		}
		return tx.NewResourcelessTransactionManager(), nil
	}
	return f.txResolver.TransactionManager(name)
}

func (f *JobFactory) stepListeners(def *jsl.Step) ([]port.StepExecutionListener, error) {
	var out []port.StepExecutionListener
	for _, ref := range def.Listeners {
		l, err := f.listener(ref)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", def.Name, err)
		}
		if sl, ok := l.(port.StepExecutionListener); ok {
			out = append(out, sl)
		}
	}
	return out, nil
}

func (f *JobFactory) listener(ref jsl.ComponentRef) (interface{}, error) {
	b, err := f.registry.Listener(ref.Ref)
	if err != nil {
		return nil, err
	}
	l, err := b(f.cfg, ref.Properties)
	if err != nil {
		return nil, fmt.Errorf("listener '%s': %w", ref.Ref, err)
	}
	return l, nil
}

func (f *JobFactory) decider(ref jsl.ComponentRef) (runner.Decider, error) {
	b, err := f.registry.Decider(ref.Ref)
	if err != nil {
		return nil, err
	}
	d, err := b(f.cfg, ref.Properties)
	if err != nil {
		return nil, fmt.Errorf("decider '%s': %w", ref.Ref, err)
	}
	return d, nil
}

func (f *JobFactory) incrementer(ref jsl.ComponentRef) (port.JobParametersIncrementer, error) {
	if b, err := f.registry.Incrementer(ref.Ref); err == nil {
		return b(f.cfg, ref.Properties)
	}
	return incrementer.New(ref.Ref, ref.Properties)
}

// validatorProperties configures the built-in validators.
type validatorProperties struct {
	Name     string   `yaml:"name"`
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

func (f *JobFactory) validator(ref jsl.ComponentRef) (port.JobParametersValidator, error) {
	if b, err := f.registry.Validator(ref.Ref); err == nil {
		return b(f.cfg, ref.Properties)
	}
	var props validatorProperties
	if err := configbinder.BindProperties(ref.Properties, &props); err != nil {
		return nil, err
	}
	switch ref.Ref {
	case "dateParameter":
		if props.Name == "" {
			return nil, fmt.Errorf("validator 'dateParameter' needs a 'name' property")
		}
		return validator.NewDateParameterValidator(props.Name), nil
	case "requiredParameters":
		return validator.NewDefaultJobParametersValidator(props.Required, props.Optional), nil
	}
	return nil, fmt.Errorf("no validator registered as '%s'", ref.Ref)
}
