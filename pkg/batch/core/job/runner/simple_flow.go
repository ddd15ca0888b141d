package runner

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Decider picks an exit code that routes the flow, without doing any work itself.
type Decider interface {
	Decide(ctx context.Context, jobExecution *model.JobExecution, last *model.StepExecution) (model.ExitStatus, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, jobExecution *model.JobExecution, last *model.StepExecution) (model.ExitStatus, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, je *model.JobExecution, last *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, je, last)
}

// state is one element of a SimpleFlow. Exactly one of step, flow or decider is set.
type state struct {
	name        string
	step        port.Step
	flow        port.Flow
	decider     Decider
	transitions []Transition
}

// SimpleFlow runs its elements in order. After an element ends, its exit code is matched
// against the element's transitions; without a match the flow moves to the next element
// on success and ends on failure or stop.
type SimpleFlow struct {
	name       string
	states     []*state
	index      map[string]int
	executor   port.StepExecutor
	repository repository.JobRepository
}

var _ port.Flow = (*SimpleFlow)(nil)

// NewSimpleFlow creates an empty SimpleFlow.
func NewSimpleFlow(name string, executor port.StepExecutor, repo repository.JobRepository) *SimpleFlow {
	return &SimpleFlow{name: name, index: map[string]int{}, executor: executor, repository: repo}
}

// FlowName implements port.Flow.
func (f *SimpleFlow) FlowName() string { return f.name }

// AddStep appends a step element.
func (f *SimpleFlow) AddStep(s port.Step, transitions ...Transition) *SimpleFlow {
	return f.add(&state{name: s.StepName(), step: s, transitions: transitions})
}

// AddFlow appends a nested flow such as a split.
func (f *SimpleFlow) AddFlow(flow port.Flow, transitions ...Transition) *SimpleFlow {
	return f.add(&state{name: flow.FlowName(), flow: flow, transitions: transitions})
}

// AddDecider appends a decision element.
func (f *SimpleFlow) AddDecider(name string, d Decider, transitions ...Transition) *SimpleFlow {
	return f.add(&state{name: name, decider: d, transitions: transitions})
}

func (f *SimpleFlow) add(s *state) *SimpleFlow {
	f.index[s.name] = len(f.states)
	f.states = append(f.states, s)
	return f
}

// Validate checks that every transition target exists.
func (f *SimpleFlow) Validate() error {
	for _, s := range f.states {
		for _, t := range s.transitions {
			if t.To == "" {
				if !t.terminal() {
					return fmt.Errorf("flow '%s': transition on '%s' from '%s' has no target", f.name, t.On, s.name)
				}
				continue
			}
			if _, ok := f.index[t.To]; !ok {
				return fmt.Errorf("flow '%s': transition from '%s' names unknown element '%s'", f.name, s.name, t.To)
			}
		}
	}
	return nil
}

// outcome is the result of one element.
type outcome struct {
	status model.JobStatus
	exit   model.ExitStatus
	steps  []*model.StepExecution
	err    error
}

// Execute implements port.Flow.
func (f *SimpleFlow) Execute(ctx context.Context, je *model.JobExecution) (*port.FlowExecution, error) {
	fe := &port.FlowExecution{Status: model.BatchStatusCompleted, ExitStatus: model.ExitStatusCompleted}
	if len(f.states) == 0 {
		return fe, nil
	}

	var last *model.StepExecution
	for i, visits := 0, 0; ; visits++ {
		if err := ctx.Err(); err != nil {
			fe.Status = fe.Status.Upgrade(model.BatchStatusStopped)
			fe.ExitStatus = model.ExitStatusStopped
			return fe, &exception.JobAbortError{JobName: je.JobName, ExecutionID: je.ID, Err: err}
		}
		if visits > maxVisits(len(f.states)) {
			err := fmt.Errorf("flow '%s' exceeded %d element visits; check its transitions for a loop", f.name, visits-1)
			fe.Status, fe.ExitStatus = model.BatchStatusFailed, model.ExitStatusFailed.AddExitDescription(err.Error())
			return fe, err
		}

		s := f.states[i]
		out := f.executeState(ctx, je, s, last)
		fe.StepExecutions = append(fe.StepExecutions, out.steps...)
		if n := len(out.steps); n > 0 {
			last = out.steps[n-1]
		}
		fe.ExitStatus = out.exit

		t, ok := match(s.transitions, out.exit.ExitCode)
		switch {
		case !ok && out.status != model.BatchStatusCompleted:
			fe.Status = fe.Status.Upgrade(out.status)
			return fe, f.flowError(je, s, out)
		case !ok && i+1 < len(f.states):
			i++
			continue
		case !ok:
			return fe, nil
		case t.End:
			logger.Infof("Flow '%s': '%s' ended with %s, completing flow.", f.name, s.name, out.exit.ExitCode)
			fe.ExitStatus = t.exit(out.exit)
			return fe, nil
		case t.Fail:
			fe.Status = model.BatchStatusFailed
			fe.ExitStatus = t.exit(model.ExitStatusFailed.AddExitDescription(out.exit.ExitDescription))
			err := out.err
			if err == nil {
				err = fmt.Errorf("flow '%s' failed on exit code %s of '%s'", f.name, out.exit.ExitCode, s.name)
			}
			return fe, err
		case t.Stop:
			fe.Status = model.BatchStatusStopped
			fe.ExitStatus = t.exit(model.ExitStatusStopped)
			return fe, &exception.JobAbortError{JobName: je.JobName, ExecutionID: je.ID, Err: errors.New("stop transition from " + s.name)}
		}
		// A failure routed by a transition counts as handled.
		logger.Debugf("Flow '%s': '%s' ended with %s, moving to '%s'.", f.name, s.name, out.exit.ExitCode, t.To)
		next, known := f.index[t.To]
		if !known {
			err := fmt.Errorf("flow '%s': transition from '%s' names unknown element '%s'", f.name, s.name, t.To)
			fe.Status, fe.ExitStatus = model.BatchStatusFailed, model.ExitStatusFailed.AddExitDescription(err.Error())
			return fe, err
		}
		i = next
	}
}

func maxVisits(states int) int { return states * 100 }

func (f *SimpleFlow) flowError(je *model.JobExecution, s *state, out outcome) error {
	if out.err != nil {
		return out.err
	}
	if out.status == model.BatchStatusStopped {
		return &exception.JobAbortError{JobName: je.JobName, ExecutionID: je.ID, Err: context.Canceled}
	}
	return fmt.Errorf("'%s' ended with status %s: %s", s.name, out.status, out.exit.ExitDescription)
}

func (f *SimpleFlow) executeState(ctx context.Context, je *model.JobExecution, s *state, last *model.StepExecution) outcome {
	switch {
	case s.step != nil:
		return f.executeStep(ctx, je, s.step)
	case s.flow != nil:
		fe, err := s.flow.Execute(ctx, je)
		return outcome{status: fe.Status, exit: fe.ExitStatus, steps: fe.StepExecutions, err: err}
	default:
		exit, err := s.decider.Decide(ctx, je, last)
		if err != nil {
			return outcome{status: model.BatchStatusFailed, exit: model.ExitStatusFailed.AddExitDescription(err.Error()), err: err}
		}
		logger.Infof("Flow '%s': decision '%s' returned %s.", f.name, s.name, exit.ExitCode)
		return outcome{status: model.BatchStatusCompleted, exit: exit}
	}
}

func (f *SimpleFlow) executeStep(ctx context.Context, je *model.JobExecution, s port.Step) outcome {
	name := s.StepName()
	prior, err := f.priorExecution(ctx, je, name)
	if err != nil {
		logger.Warnf("Flow '%s': could not look up earlier runs of step '%s': %v", f.name, name, err)
	}
	if prior != nil && prior.Status == model.BatchStatusCompleted {
		logger.Infof("Flow '%s': step '%s' already completed in execution %s, skipping.", f.name, name, prior.JobExecutionID)
		return outcome{status: model.BatchStatusCompleted, exit: prior.ExitStatus}
	}

	se := model.NewStepExecution(name, je)
	if prior != nil {
		logger.Infof("Flow '%s': restarting step '%s' from the context of execution %s.", f.name, name, prior.JobExecutionID)
		se.ExecutionContext = prior.ExecutionContext.Copy()
	}
	if err := f.repository.SaveStepExecution(ctx, se); err != nil {
		err = exception.NewBatchError(f.name, "failed to save step execution for "+name, err, false, false)
		se.MarkAsFailed(err)
		return outcome{status: model.BatchStatusFailed, exit: se.ExitStatus, err: err}
	}
	se, err = f.executor.ExecuteStep(ctx, s, je, se)
	return outcome{status: se.Status, exit: se.ExitStatus, steps: []*model.StepExecution{se}, err: err}
}

// priorExecution finds the latest run of stepName in earlier executions of the same
// JobInstance.
func (f *SimpleFlow) priorExecution(ctx context.Context, je *model.JobExecution, stepName string) (*model.StepExecution, error) {
	if je.JobInstanceID == "" {
		return nil, nil
	}
	instance, err := f.repository.FindJobInstanceByID(ctx, je.JobInstanceID)
	if err != nil {
		return nil, err
	}
	executions, err := f.repository.FindJobExecutionsByJobInstance(ctx, instance)
	if err != nil {
		return nil, err
	}
	var latest *model.StepExecution
	for _, prev := range executions {
		if prev.ID == je.ID {
			continue
		}
		steps, err := f.repository.FindStepExecutionsByJobExecutionID(ctx, prev.ID)
		if err != nil {
			return nil, err
		}
		for _, se := range steps {
			if se.StepName != stepName {
				continue
			}
			if latest == nil || se.LastUpdated.After(latest.LastUpdated) {
				latest = se
			}
		}
	}
	return latest, nil
}
