// Package retry decides whether a failed chunk operation is attempted again.
package retry

import (
	"context"
	"errors"
	"time"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

// Policy decides whether a process or write failure is retried.
type Policy interface {
	// ShouldRetry reports whether err is retryable at all.
	ShouldRetry(err error) bool
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts() int
	// Backoff returns the wait before the given retry (1 for the first retry).
	Backoff(attempt int) time.Duration
}

type noRetry struct{}

// NoRetry returns the default policy: every failure is final.
func NoRetry() Policy { return noRetry{} }

func (noRetry) ShouldRetry(error) bool    { return false }
func (noRetry) MaxAttempts() int          { return 1 }
func (noRetry) Backoff(int) time.Duration { return 0 }

// SimplePolicy retries errors flagged retryable, or matching one of the configured names,
// with a fixed backoff.
type SimplePolicy struct {
	maxAttempts int
	interval    time.Duration
	retryable   []string
}

// NewSimplePolicy creates a SimplePolicy. maxAttempts below 2 disables retries.
func NewSimplePolicy(maxAttempts int, interval time.Duration, retryable []string) *SimplePolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SimplePolicy{maxAttempts: maxAttempts, interval: interval, retryable: retryable}
}

// FromConfig builds the policy described by cfg, or NoRetry when retries are disabled.
func FromConfig(cfg config.ItemRetryConfig) Policy {
	if cfg.MaxAttempts < 2 {
		return NoRetry()
	}
	return NewSimplePolicy(cfg.MaxAttempts, cfg.InitialInterval(), cfg.RetryableExceptions)
}

// ShouldRetry implements Policy.
func (p *SimplePolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, name := range p.retryable {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// MaxAttempts implements Policy.
func (p *SimplePolicy) MaxAttempts() int { return p.maxAttempts }

// Backoff implements Policy.
func (p *SimplePolicy) Backoff(int) time.Duration { return p.interval }

// Do calls fn until it succeeds, the policy gives up or ctx ends. onRetry, when set, is
// called before each new attempt.
func Do(ctx context.Context, p Policy, fn func(attempt int) error, onRetry func(attempt int, err error)) error {
	if p == nil {
		p = NoRetry()
	}
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts() || !p.ShouldRetry(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if wait := p.Backoff(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}
	}
}

var _ Policy = (*SimplePolicy)(nil)
