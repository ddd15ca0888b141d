// Package generic holds small built-in tasklets: one that seeds the ExecutionContext and
// one that fails on purpose to exercise restarts.
package generic

import (
	"context"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// ExecutionContextWriter puts typed values into the step ExecutionContext. Keys have the
// form "name.type" where type is string, int, float or bool.
type ExecutionContextWriter struct {
	values map[string]string
}

// NewExecutionContextWriter creates the tasklet from its properties.
func NewExecutionContextWriter(properties map[string]string) *ExecutionContextWriter {
	return &ExecutionContextWriter{values: properties}
}

// Execute implements port.Tasklet.
func (t *ExecutionContextWriter) Execute(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, keyWithType := range keys {
		raw := t.values[keyWithType]
		key, kind, ok := strings.Cut(keyWithType, ".")
		if !ok {
			kind = "string"
		}
		var (
			value interface{}
			err   error
		)
		switch strings.ToLower(kind) {
		case "int":
			value, err = strconv.Atoi(raw)
		case "float", "float64":
			value, err = strconv.ParseFloat(raw, 64)
		case "bool":
			value, err = strconv.ParseBool(raw)
		case "string":
			value = raw
		default:
			key, value = keyWithType, raw
		}
		if err != nil {
			return model.ExitStatusFailed, exception.NewBatchErrorf(se.StepName, "value '%s' of '%s' is not a %s", raw, key, kind, err)
		}
		se.ExecutionContext.Put(key, value)
		logger.Debugf("Step '%s': put %s=%v.", se.StepName, key, value)
	}
	return model.ExitStatusCompleted, nil
}

const attemptsKey = "failing.attempts"

// FailingTasklet fails its first FailCount executions within a job instance, counting
// attempts in the ExecutionContext that a restart carries over. With FailCount 0 it fails
// with probability FailRate.
type FailingTasklet struct {
	FailCount int
	FailRate  float64
}

// Execute implements port.Tasklet.
func (t *FailingTasklet) Execute(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	attempt, _ := se.ExecutionContext.GetInt(attemptsKey)
	attempt++
	se.ExecutionContext.Put(attemptsKey, attempt)

	fail := attempt <= t.FailCount
	if t.FailCount == 0 && t.FailRate > 0 {
		fail = rand.Float64() < t.FailRate
	}
	if fail {
		logger.Errorf("Step '%s': failing on purpose (attempt %d).", se.StepName, attempt)
		return model.ExitStatusFailed, exception.NewBatchErrorf(se.StepName, "intentional failure on attempt %d", attempt)
	}
	logger.Infof("Step '%s': attempt %d succeeded.", se.StepName, attempt)
	return model.ExitStatusCompleted, nil
}

var (
	_ port.Tasklet = (*ExecutionContextWriter)(nil)
	_ port.Tasklet = (*FailingTasklet)(nil)
)
