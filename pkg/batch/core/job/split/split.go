// Package split runs several flows in parallel and joins them into one outcome.
package split

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Split is a flow whose branches run concurrently on a worker pool. Branches own their
// StepExecutions; the split hands them back to the caller only after every branch ended.
type Split struct {
	name  string
	flows []port.Flow
	pool  port.WorkerPool
}

var _ port.Flow = (*Split)(nil)

// New creates a Split over flows.
func New(name string, pool port.WorkerPool, flows ...port.Flow) *Split {
	return &Split{name: name, flows: flows, pool: pool}
}

// FlowName implements port.Flow.
func (s *Split) FlowName() string { return s.name }

// Flows returns the branches.
func (s *Split) Flows() []port.Flow { return s.flows }

// Execute implements port.Flow. Branches not yet dispatched when ctx ends are never
// started. The status is FAILED if any branch failed, else STOPPED if any stopped, else
// COMPLETED.
func (s *Split) Execute(ctx context.Context, je *model.JobExecution) (*port.FlowExecution, error) {
	logger.Infof("Split '%s' starting %d branches.", s.name, len(s.flows))

	handles := make([]port.Handle, 0, len(s.flows))
	var dispatchErr error
	for _, f := range s.flows {
		flow := f
		h, err := s.pool.Submit(ctx, func(branchCtx context.Context) (interface{}, error) {
			return flow.Execute(branchCtx, je)
		})
		if err != nil {
			dispatchErr = err
			logger.Warnf("Split '%s': dispatch halted before branch '%s': %v", s.name, flow.FlowName(), err)
			break
		}
		handles = append(handles, h)
	}

	out := &port.FlowExecution{Status: model.BatchStatusCompleted}
	var errs *multierror.Error
	var failed []string
	var stopped *model.ExitStatus
	for i, res := range s.pool.AwaitAll(handles) {
		name := s.flows[i].FlowName()
		fe, _ := res.Value.(*port.FlowExecution)
		if fe == nil {
			fe = &port.FlowExecution{Status: model.BatchStatusFailed}
		}
		out.StepExecutions = append(out.StepExecutions, fe.StepExecutions...)
		out.Status = out.Status.Upgrade(fe.Status)
		if fe.Status.IsUnsuccessful() {
			failed = append(failed, name)
		}
		if fe.Status == model.BatchStatusStopped {
			exit := fe.ExitStatus
			if stopped != nil {
				exit = stopped.And(exit)
			}
			stopped = &exit
		}
		if res.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("branch '%s': %w", name, res.Err))
		}
	}
	if dispatchErr != nil {
		if ctx.Err() != nil {
			out.Status = out.Status.Upgrade(model.BatchStatusStopped)
			dispatchErr = &exception.JobAbortError{JobName: je.JobName, ExecutionID: je.ID, Err: dispatchErr}
		} else {
			out.Status = out.Status.Upgrade(model.BatchStatusFailed)
		}
		errs = multierror.Append(errs, dispatchErr)
	}

	switch {
	case out.Status.IsUnsuccessful():
		out.Status = model.BatchStatusFailed
		out.ExitStatus = model.ExitStatusFailed.AddExitDescription("failed branches: " + strings.Join(failed, ", "))
	case out.Status == model.BatchStatusStopped && stopped != nil:
		out.ExitStatus = *stopped
	case out.Status == model.BatchStatusStopped:
		out.ExitStatus = model.ExitStatusStopped
	default:
		out.ExitStatus = model.ExitStatusCompleted
	}
	logger.Infof("Split '%s' joined with %s.", s.name, out.Status)
	if errs != nil {
		errs.ErrorFormat = joinFormat
	}
	return out, errs.ErrorOrNil()
}

func joinFormat(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}
