package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

var errTransient = errors.New("connection reset by peer")

func TestFromConfig(t *testing.T) {
	assert.Equal(t, NoRetry(), FromConfig(config.ItemRetryConfig{MaxAttempts: 1}))

	p := FromConfig(config.ItemRetryConfig{MaxAttempts: 3, InitialIntervalMs: 5, RetryableExceptions: []string{"connection reset"}})
	assert.Equal(t, 3, p.MaxAttempts())
	assert.Equal(t, 5*time.Millisecond, p.Backoff(1))
	assert.True(t, p.ShouldRetry(errTransient))
	assert.False(t, p.ShouldRetry(errors.New("constraint violation")))
}

func TestSimplePolicy_BatchErrorFlag(t *testing.T) {
	p := NewSimplePolicy(2, 0, nil)
	assert.True(t, p.ShouldRetry(exception.NewBatchError("writer", "temporary", errTransient, false, true)))
	assert.False(t, p.ShouldRetry(exception.NewBatchError("writer", "fatal", errTransient, false, false)))
	assert.False(t, p.ShouldRetry(nil))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := NewSimplePolicy(3, 0, []string{"connection reset"})
	var retries []int

	calls := 0
	err := Do(context.Background(), p, func(int) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, func(attempt int, err error) { retries = append(retries, attempt) })

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	p := NewSimplePolicy(2, 0, []string{"connection reset"})
	calls := 0
	err := Do(context.Background(), p, func(int) error {
		calls++
		return errTransient
	}, nil)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NewSimplePolicy(5, 0, nil), func(int) error {
		calls++
		return errors.New("bad data")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_BackoffHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, NewSimplePolicy(3, time.Hour, []string{"connection reset"}), func(int) error {
		return errTransient
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errTransient)
}
