package item

import (
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/skip"
)

// Option configures a ChunkStep.
type Option func(*settings)

type settings struct {
	retryPolicy    retry.Policy
	skipPolicy     skip.Policy
	stepListeners  []port.StepExecutionListener
	chunkListeners []port.ChunkListener
	skipListeners  []port.SkipListener
	retryListeners []port.RetryListener
	promotion      *step.Promotion
	recorder       metrics.MetricRecorder
	tracer         metrics.Tracer
}

func newSettings(opts []Option) *settings {
	s := &settings{
		retryPolicy: retry.NoRetry(),
		skipPolicy:  skip.NeverSkip(),
		recorder:    &metrics.NoOpMetricRecorder{},
		tracer:      &metrics.NoOpTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithRetryPolicy sets the policy applied to process and write failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *settings) {
		if p != nil {
			s.retryPolicy = p
		}
	}
}

// WithSkipPolicy sets the policy applied to read, process and write failures.
func WithSkipPolicy(p skip.Policy) Option {
	return func(s *settings) {
		if p != nil {
			s.skipPolicy = p
		}
	}
}

// WithListener registers l for every listener interface it implements.
func WithListener(l interface{}) Option {
	return func(s *settings) {
		if v, ok := l.(port.StepExecutionListener); ok {
			s.stepListeners = append(s.stepListeners, v)
		}
		if v, ok := l.(port.ChunkListener); ok {
			s.chunkListeners = append(s.chunkListeners, v)
		}
		if v, ok := l.(port.SkipListener); ok {
			s.skipListeners = append(s.skipListeners, v)
		}
		if v, ok := l.(port.RetryListener); ok {
			s.retryListeners = append(s.retryListeners, v)
		}
	}
}

// WithPromotion promotes step context keys to the job context when the step ends.
func WithPromotion(p *step.Promotion) Option {
	return func(s *settings) { s.promotion = p }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}
