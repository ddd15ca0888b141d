package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

type capturingNotifier struct{ got []*model.JobExecution }

func (c *capturingNotifier) NotifyJobCompletion(_ context.Context, je *model.JobExecution) error {
	c.got = append(c.got, je)
	return nil
}

func finished(t *testing.T, fail bool) *model.JobExecution {
	t.Helper()
	instance, err := model.NewJobInstance("reportJob", model.NewJobParameters())
	require.NoError(t, err)
	je := model.NewJobExecution(instance, model.NewJobParameters())
	je.MarkAsStarted()
	if fail {
		je.MarkAsFailed(errors.New("boom"))
	} else {
		je.MarkAsCompleted()
	}
	return je
}

func TestListener_OnlyOnFailure(t *testing.T) {
	n := &capturingNotifier{}
	registry := support.NewComponentRegistry()
	Register(registry, n)

	b, err := registry.Listener(ListenerRef)
	require.NoError(t, err)
	l, err := b(&config.Config{}, map[string]string{"onlyOnFailure": "true"})
	require.NoError(t, err)
	listener := l.(*Listener)

	ctx := context.Background()
	require.NoError(t, listener.AfterJob(ctx, finished(t, false)))
	assert.Empty(t, n.got)

	failed := finished(t, true)
	require.NoError(t, listener.AfterJob(ctx, failed))
	assert.Equal(t, []*model.JobExecution{failed}, n.got)
}

func TestMessage(t *testing.T) {
	msg := Message(finished(t, true))
	assert.Contains(t, msg, "Job 'reportJob'")
	assert.Contains(t, msg, "status=FAILED")
	assert.Contains(t, msg, "failures=1")
}
