package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

func capture(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.ReplaceLogger(zap.New(core)))
	return logs
}

func execution(t *testing.T) (*model.JobExecution, *model.StepExecution) {
	t.Helper()
	params := model.NewJobParameters().PutString("input", "a.csv").PutString("password", "s3cret")
	instance, err := model.NewJobInstance("importJob", params)
	require.NoError(t, err)
	je := model.NewJobExecution(instance, params)
	return je, model.NewStepExecution("load", je)
}

func TestJobListener_MasksParameters(t *testing.T) {
	logs := capture(t)
	je, _ := execution(t)
	l := NewJobListener([]string{"password"})

	require.NoError(t, l.BeforeJob(context.Background(), je))
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("disk full"))
	require.NoError(t, l.AfterJob(context.Background(), je))

	entries := logs.All()
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Contains(t, entries[0].Message, "input=a.csv")
	assert.Contains(t, entries[0].Message, "password=********")
	assert.NotContains(t, entries[0].Message, "s3cret")
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "FAILED")
}

func TestItemListeners_NameTheStep(t *testing.T) {
	logs := capture(t)
	_, se := execution(t)
	ctx := port.WithStepExecution(context.Background(), se)

	NewSkipListener().OnSkipInProcess(ctx, "row-7", errors.New("bad row"))
	NewRetryListener().OnRetry(ctx, 2, errors.New("deadlock"))
	NewChunkListener().AfterChunkError(ctx, se, errors.New("rollback"))
	assert.Nil(t, NewStepListener().AfterStep(ctx, se))

	entries := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, entries, 3)
	assert.Contains(t, entries[0].Message, "step 'load' skipped item row-7 in process")
	assert.Contains(t, entries[1].Message, "attempt 2 failed")
}

func TestRegister(t *testing.T) {
	registry := support.NewComponentRegistry()
	Register(registry)

	cfg := &config.Config{}
	for ref, check := range map[string]func(interface{}) bool{
		JobListenerRef:   func(v interface{}) bool { _, ok := v.(port.JobExecutionListener); return ok },
		StepListenerRef:  func(v interface{}) bool { _, ok := v.(port.StepExecutionListener); return ok },
		ChunkListenerRef: func(v interface{}) bool { _, ok := v.(port.ChunkListener); return ok },
		SkipListenerRef:  func(v interface{}) bool { _, ok := v.(port.SkipListener); return ok },
		RetryListenerRef: func(v interface{}) bool { _, ok := v.(port.RetryListener); return ok },
	} {
		b, err := registry.Listener(ref)
		require.NoError(t, err, ref)
		l, err := b(cfg, nil)
		require.NoError(t, err)
		assert.True(t, check(l), ref)
	}
}
