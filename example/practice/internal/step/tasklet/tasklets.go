// Package tasklet holds the tasklets of the practice jobs and registers the ones that job
// definitions refer to.
package tasklet

import (
	"context"
	"time"

	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/partition"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Registry names used in jobs.yaml.
const (
	HelloRef            = "helloTasklet"
	PartitionLoggerRef  = "partitionLoggerTasklet"
	TargetDateParameter = "targetDate"
)

// Hello logs a greeting.
func Hello() port.Tasklet {
	return port.TaskletFunc(func(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		logger.Infof("Hello Batch")
		return model.ExitStatusCompleted, nil
	})
}

// TargetDate parses the targetDate job parameter and logs it.
func TargetDate() port.Tasklet {
	return port.TaskletFunc(func(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		raw := se.JobParameters().GetString(TargetDateParameter)
		logger.Infof("Step '%s': job parameter %s = %s", se.StepName, TargetDateParameter, raw)
		date, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return model.ExitStatusFailed, exception.NewBatchError(se.StepName, "targetDate is not a date", err, false, false)
		}
		se.ExecutionContext.Put(TargetDateParameter, date.Format(model.DateLayout))
		logger.Infof("Step '%s': executed for %s.", se.StepName, date.Format("Mon, 02 Jan 2006"))
		return model.ExitStatusCompleted, nil
	})
}

// Sleeping waits for d, or until ctx ends, and then logs.
func Sleeping(d time.Duration) port.Tasklet {
	return port.TaskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return model.ExitStatusStopped, ctx.Err()
		case <-timer.C:
		}
		logger.Infof("Step '%s' completed after %s.", se.StepName, d)
		return model.ExitStatusCompleted, nil
	})
}

// PartitionLogger logs the partition a worker step runs for.
func PartitionLogger() port.Tasklet {
	return port.TaskletFunc(func(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		index, count, ok := partition.Index(se.ExecutionContext)
		if !ok {
			logger.Warnf("Step '%s' is not running as a partition.", se.StepName)
			return model.ExitStatusCompleted, nil
		}
		logger.Infof("Step '%s': partition %d of %d.", se.StepName, index+1, count)
		return model.ExitStatusCompleted, nil
	})
}

// Register adds the tasklets used by job definitions to registry.
func Register(registry *support.ComponentRegistry) {
	registry.RegisterTasklet(HelloRef, func(*config.Config, map[string]string) (port.Tasklet, error) {
		return Hello(), nil
	})
	registry.RegisterTasklet(PartitionLoggerRef, func(*config.Config, map[string]string) (port.Tasklet, error) {
		return PartitionLogger(), nil
	})
}

// Module registers the practice tasklets.
var Module = fx.Invoke(Register)
