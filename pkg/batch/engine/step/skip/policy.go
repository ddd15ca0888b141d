// Package skip decides whether a failed item is dropped instead of failing its step.
package skip

import (
	"errors"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

// Policy decides whether a read, process or write failure is skipped.
type Policy interface {
	// ShouldSkip reports whether err may be skipped given the skips already recorded.
	ShouldSkip(err error, skipCount int) bool
}

type neverSkip struct{}

// NeverSkip returns the default policy: no failure is skipped.
func NeverSkip() Policy { return neverSkip{} }

func (neverSkip) ShouldSkip(error, int) bool { return false }

// LimitPolicy skips errors flagged skippable, or matching a configured name, until the
// limit is reached.
type LimitPolicy struct {
	limit     int
	skippable []string
}

// NewLimitPolicy creates a LimitPolicy. A limit of 0 never skips.
func NewLimitPolicy(limit int, skippable []string) *LimitPolicy {
	return &LimitPolicy{limit: limit, skippable: skippable}
}

// FromConfig builds the policy described by cfg, or NeverSkip when skipping is disabled.
func FromConfig(cfg config.ItemSkipConfig) Policy {
	if cfg.SkipLimit <= 0 {
		return NeverSkip()
	}
	return NewLimitPolicy(cfg.SkipLimit, cfg.SkippableExceptions)
}

// Limit returns the maximum number of skips.
func (p *LimitPolicy) Limit() int { return p.limit }

// ShouldSkip implements Policy.
func (p *LimitPolicy) ShouldSkip(err error, skipCount int) bool {
	if err == nil || p.limit <= 0 || skipCount >= p.limit {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsSkippable() {
		return true
	}
	for _, name := range p.skippable {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

var _ Policy = (*LimitPolicy)(nil)
