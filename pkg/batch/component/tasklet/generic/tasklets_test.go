package generic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

func newStepExecution(t *testing.T) *model.StepExecution {
	t.Helper()
	params := model.NewJobParameters()
	instance, err := model.NewJobInstance("job", params)
	require.NoError(t, err)
	return model.NewStepExecution("step", model.NewJobExecution(instance, params))
}

func TestExecutionContextWriter_ConvertsTypes(t *testing.T) {
	se := newStepExecution(t)
	tasklet := NewExecutionContextWriter(map[string]string{
		"count.int":    "3",
		"ratio.float":  "0.5",
		"enabled.bool": "true",
		"label.string": "north",
		"plain":        "value",
	})

	exit, err := tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, exit)

	n, _ := se.ExecutionContext.GetInt("count")
	assert.Equal(t, 3, n)
	f, _ := se.ExecutionContext.GetFloat64("ratio")
	assert.Equal(t, 0.5, f)
	b, _ := se.ExecutionContext.GetBool("enabled")
	assert.True(t, b)
	s, _ := se.ExecutionContext.GetString("label")
	assert.Equal(t, "north", s)
	s, _ = se.ExecutionContext.GetString("plain")
	assert.Equal(t, "value", s)
}

func TestExecutionContextWriter_BadValueFails(t *testing.T) {
	tasklet := NewExecutionContextWriter(map[string]string{"count.int": "three"})
	exit, err := tasklet.Execute(context.Background(), newStepExecution(t))
	require.Error(t, err)
	assert.Equal(t, model.ExitStatusFailed, exit)
	assert.Contains(t, err.Error(), "count")
}

func TestFailingTasklet_FailsFirstAttemptsAcrossRestarts(t *testing.T) {
	tasklet := &FailingTasklet{FailCount: 2}
	se := newStepExecution(t)

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := tasklet.Execute(context.Background(), se)
		require.Error(t, err, "attempt %d", attempt)
		// a restarted step starts from a copy of the previous context
		restarted := newStepExecution(t)
		restarted.ExecutionContext = se.ExecutionContext.Copy()
		se = restarted
	}
	exit, err := tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, exit)
}

func TestRegister_BuildsFromProperties(t *testing.T) {
	registry := support.NewComponentRegistry()
	Register(registry)

	build, err := registry.Tasklet(FailingTaskletRef)
	require.NoError(t, err)
	tasklet, err := build(&config.Config{}, map[string]string{"failCount": "1"})
	require.NoError(t, err)
	assert.Equal(t, 1, tasklet.(*FailingTasklet).FailCount)

	_, err = registry.Tasklet(ExecutionContextWriterRef)
	assert.NoError(t, err)
}
