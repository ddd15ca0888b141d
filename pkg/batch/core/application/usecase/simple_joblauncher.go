// Package usecase holds the command-level entry points: launch, operate and explore jobs.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

var (
	// ErrNoSuchJob is returned for a job name the registry does not know.
	ErrNoSuchJob = errors.New("no such job")
	// ErrJobAlreadyRunning is returned when the JobInstance already has a running execution.
	ErrJobAlreadyRunning = errors.New("job execution already running")
	// ErrJobInstanceAlreadyComplete is returned when relaunching a completed JobInstance.
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	// ErrJobRestart is returned when an execution cannot be restarted.
	ErrJobRestart = errors.New("job execution cannot be restarted")
)

// SimpleJobLauncher runs jobs synchronously and tracks them so that they can be stopped.
type SimpleJobLauncher struct {
	repository repository.JobRepository
	registry   JobRegistry

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, registry JobRegistry) *SimpleJobLauncher {
	return &SimpleJobLauncher{repository: repo, registry: registry, running: map[string]context.CancelFunc{}}
}

// Launch implements JobLauncher. With an incrementer, the parameters of the job's most
// recent JobInstance are advanced and then overlaid with params. Validation runs on the
// final parameters, before any JobInstance or JobExecution is created.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	job, err := l.registry.GetJob(jobName)
	if err != nil {
		return nil, err
	}

	if inc := job.Incrementer(); inc != nil {
		previous := model.NewJobParameters()
		last, err := l.repository.FindLatestJobInstance(ctx, jobName)
		switch {
		case err == nil && last != nil:
			previous = last.Parameters
		case err != nil && !errors.Is(err, repository.ErrJobInstanceNotFound):
			return nil, exception.NewBatchError("job_launcher", "failed to read the latest job instance", err, false, false)
		}
		next := inc.GetNext(previous)
		for _, key := range params.Keys() {
			p, _ := params.Get(key)
			next = next.Put(key, p)
		}
		params = next
		logger.Debugf("Job '%s': incremented parameters to %s.", jobName, params.String())
	}

	if err := validate(job, params); err != nil {
		return nil, err
	}

	instance, err := l.instanceFor(ctx, jobName, params)
	if err != nil {
		return nil, err
	}
	return l.run(ctx, job, instance, params)
}

func validate(job port.Job, params model.JobParameters) error {
	v := job.Validator()
	if v == nil {
		return nil
	}
	if err := v.Validate(params); err != nil {
		logger.Errorf("Job '%s': invalid parameters: %v", job.JobName(), err)
		return err
	}
	return nil
}

// instanceFor returns the JobInstance for params, creating it on first launch. An
// existing instance is reused only when its last execution can be restarted.
func (l *SimpleJobLauncher) instanceFor(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	instance, err := l.repository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil && !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, exception.NewBatchError("job_launcher", "failed to look up job instance", err, false, false)
	}
	if instance == nil {
		instance, err = model.NewJobInstance(jobName, params)
		if err != nil {
			return nil, exception.NewBatchError("job_launcher", "failed to create job instance", err, false, false)
		}
		if err := l.repository.SaveJobInstance(ctx, instance); err != nil {
			return nil, exception.NewBatchError("job_launcher", "failed to save job instance", err, false, false)
		}
		logger.Infof("Created JobInstance %s for job '%s'.", instance.ID, jobName)
		return instance, nil
	}

	executions, err := l.repository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError("job_launcher", "failed to look up job executions", err, false, false)
	}
	for _, je := range executions {
		if je.Status.IsRunning() {
			return nil, fmt.Errorf("%w: execution %s of job '%s' is %s", ErrJobAlreadyRunning, je.ID, jobName, je.Status)
		}
	}
	if len(executions) > 0 {
		switch last := executions[0]; last.Status {
		case model.BatchStatusCompleted:
			return nil, fmt.Errorf("%w: job '%s' with parameters %s; add a run.id to run it again",
				ErrJobInstanceAlreadyComplete, jobName, params.String())
		case model.BatchStatusAbandoned:
			return nil, fmt.Errorf("%w: execution %s was abandoned", ErrJobRestart, last.ID)
		}
	}
	logger.Infof("Restarting JobInstance %s of job '%s'.", instance.ID, jobName)
	return instance, nil
}

// run creates the JobExecution and drives the job to completion.
func (l *SimpleJobLauncher) run(ctx context.Context, job port.Job, instance *model.JobInstance, params model.JobParameters) (*model.JobExecution, error) {
	je := model.NewJobExecution(instance, params)
	if err := l.repository.SaveJobExecution(ctx, je); err != nil {
		return nil, exception.NewBatchError("job_launcher", "failed to save job execution", err, false, false)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	l.track(je.ID, cancel)
	defer func() {
		l.untrack(je.ID)
		cancel()
	}()

	logger.Infof("Launching job '%s' (execution %s, instance %s).", job.JobName(), je.ID, instance.ID)
	if err := job.Run(jobCtx, je); err != nil {
		logger.Debugf("Job '%s' returned: %v", job.JobName(), err)
	}
	return je, nil
}

func (l *SimpleJobLauncher) track(id string, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running[id] = cancel
}

func (l *SimpleJobLauncher) untrack(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, id)
}

// cancel stops the execution's context. It reports false when the execution is not
// running in this process.
func (l *SimpleJobLauncher) cancel(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancel, ok := l.running[id]
	if ok {
		cancel()
	}
	return ok
}

// RunningExecutionIDs lists the executions running in this process.
func (l *SimpleJobLauncher) RunningExecutionIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.running))
	for id := range l.running {
		ids = append(ids, id)
	}
	return ids
}
