// Package runner turns flows of steps into runnable jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// FlowJob is a job whose body is a single flow.
type FlowJob struct {
	name        string
	flow        port.Flow
	repository  repository.JobRepository
	listeners   []port.JobExecutionListener
	validator   port.JobParametersValidator
	incrementer port.JobParametersIncrementer
	recorder    metrics.MetricRecorder
	tracer      metrics.Tracer
}

var _ port.Job = (*FlowJob)(nil)

// JobOption configures a FlowJob.
type JobOption func(*FlowJob)

// WithValidator sets the parameters validator.
func WithValidator(v port.JobParametersValidator) JobOption {
	return func(j *FlowJob) { j.validator = v }
}

// WithIncrementer sets the run-identity incrementer.
func WithIncrementer(i port.JobParametersIncrementer) JobOption {
	return func(j *FlowJob) { j.incrementer = i }
}

// WithJobListener registers listeners in order.
func WithJobListener(l ...port.JobExecutionListener) JobOption {
	return func(j *FlowJob) { j.listeners = append(j.listeners, l...) }
}

// WithMetricRecorder sets the recorder for job start and end.
func WithMetricRecorder(r metrics.MetricRecorder) JobOption {
	return func(j *FlowJob) {
		if r != nil {
			j.recorder = r
		}
	}
}

// WithTracer sets the tracer for the job span.
func WithTracer(t metrics.Tracer) JobOption {
	return func(j *FlowJob) {
		if t != nil {
			j.tracer = t
		}
	}
}

// NewFlowJob creates a FlowJob.
func NewFlowJob(name string, flow port.Flow, repo repository.JobRepository, opts ...JobOption) *FlowJob {
	j := &FlowJob{
		name:       name,
		flow:       flow,
		repository: repo,
		recorder:   &metrics.NoOpMetricRecorder{},
		tracer:     &metrics.NoOpTracer{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JobName implements port.Job.
func (j *FlowJob) JobName() string { return j.name }

// Flow returns the job's flow.
func (j *FlowJob) Flow() port.Flow { return j.flow }

// Validator implements port.Job.
func (j *FlowJob) Validator() port.JobParametersValidator { return j.validator }

// Incrementer implements port.Job.
func (j *FlowJob) Incrementer() port.JobParametersIncrementer { return j.incrementer }

// Run implements port.Job. It always leaves je terminal and persisted; the returned error
// is the one that ended the flow.
func (j *FlowJob) Run(ctx context.Context, je *model.JobExecution) (err error) {
	ctx, finish := j.tracer.StartJobSpan(ctx, je)
	defer finish()
	logger.Infof("Job '%s' (execution %s) starting with parameters %s.", j.name, je.ID, je.Parameters.String())

	j.beforeJob(ctx, je)
	je.MarkAsStarted()
	if err := j.repository.UpdateJobExecution(ctx, je); err != nil {
		je.MarkAsFailed(err)
		j.finish(context.WithoutCancel(ctx), je, err)
		return err
	}
	j.recorder.RecordJobStart(ctx, je)

	fe, err := j.execute(ctx, je)
	for _, se := range fe.StepExecutions {
		je.AddStepExecution(se)
	}
	status, exit := worstOf(fe)

	switch status {
	case model.BatchStatusCompleted:
		if !exit.IsRunning() {
			je.ExitStatus = exit
		}
		je.MarkAsCompleted()
	case model.BatchStatusStopped:
		je.MarkAsStopping()
		je.ExitStatus = model.ExitStatusStopped.AddExitDescription(exit.ExitDescription)
		je.MarkAsStopped()
	default:
		if err == nil {
			err = errors.New(exit.ExitDescription)
		}
		je.MarkAsFailed(err)
	}
	if err != nil {
		j.tracer.RecordError(ctx, j.name, err)
	}
	j.finish(context.WithoutCancel(ctx), je, err)
	return err
}

// worstOf returns the flow outcome raised to the worst status among its finished steps.
// A transition that routes past a FAILED or STOPPED step does not hide that step.
func worstOf(fe *port.FlowExecution) (model.JobStatus, model.ExitStatus) {
	status, exit := fe.Status, fe.ExitStatus
	for _, se := range fe.StepExecutions {
		if !se.Status.IsFinished() || status.Upgrade(se.Status) == status {
			continue
		}
		status = se.Status
		exit = se.Status.ToExitStatus().
			AddExitDescription(fmt.Sprintf("step '%s' ended %s", se.StepName, se.Status)).
			AddExitDescription(se.ExitStatus.ExitDescription)
	}
	if status != fe.Status {
		logger.Warnf("Flow ended %s but step executions include %s; the job ends %s.", fe.Status, status, status)
	}
	return status, exit
}

func (j *FlowJob) execute(ctx context.Context, je *model.JobExecution) (fe *port.FlowExecution, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Job '%s' panicked: %v\n%s", j.name, r, debug.Stack())
			err = fmt.Errorf("job panicked: %v", r)
			if fe == nil {
				fe = &port.FlowExecution{}
			}
			fe.Status = model.BatchStatusFailed
		}
	}()
	fe, err = j.flow.Execute(ctx, je)
	if fe == nil {
		fe = &port.FlowExecution{Status: model.BatchStatusFailed, ExitStatus: model.ExitStatusFailed}
	}
	return fe, err
}

// finish folds promoted entries into the job context, persists je and runs the after-job
// listeners.
func (j *FlowJob) finish(ctx context.Context, je *model.JobExecution, err error) {
	if promoted, snapErr := j.repository.Snapshot(ctx, port.JobScope(je)); snapErr != nil {
		logger.Warnf("Job '%s': failed to read the job context: %v", j.name, snapErr)
	} else {
		if je.ExecutionContext == nil {
			je.ExecutionContext = model.NewExecutionContext()
		}
		je.ExecutionContext.Merge("", promoted)
	}
	if updateErr := j.repository.UpdateJobExecution(ctx, je); updateErr != nil {
		logger.Errorf("Job '%s': failed to persist final state %s: %v", j.name, je.Status, updateErr)
	}

	j.afterJob(ctx, je)
	j.recorder.RecordJobEnd(ctx, je)
	j.recorder.RecordDuration(ctx, "job", je.Duration(), map[string]string{"job": j.name, "status": string(je.Status)})

	if err != nil {
		logger.Errorf("Job '%s' (execution %s) ended %s: %v", j.name, je.ID, je.Status, err)
	} else {
		logger.Infof("Job '%s' (execution %s) ended %s with exit status %s in %s.",
			j.name, je.ID, je.Status, je.ExitStatus, je.Duration().Round(time.Millisecond))
	}
	for _, se := range je.StepExecutions() {
		logger.Debugf("  %s", se.Summary())
	}
}

func (j *FlowJob) beforeJob(ctx context.Context, je *model.JobExecution) {
	for _, l := range j.listeners {
		j.notify(func() error { return l.BeforeJob(ctx, je) }, "BeforeJob")
	}
}

func (j *FlowJob) afterJob(ctx context.Context, je *model.JobExecution) {
	for _, l := range j.listeners {
		j.notify(func() error { return l.AfterJob(ctx, je) }, "AfterJob")
	}
}

// notify runs one listener callback. Listener errors and panics never change the outcome.
func (j *FlowJob) notify(call func() error, phase string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Job '%s': %s listener panicked: %v", j.name, phase, r)
		}
	}()
	if err := call(); err != nil {
		logger.Errorf("Job '%s': %s listener failed: %v", j.name, phase, err)
	}
}
