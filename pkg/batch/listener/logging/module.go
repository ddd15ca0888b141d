package logging

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
)

// Reference names of the logging listeners in job definitions.
const (
	JobListenerRef   = "loggingJobListener"
	StepListenerRef  = "loggingStepListener"
	ChunkListenerRef = "loggingChunkListener"
	SkipListenerRef  = "loggingSkipListener"
	RetryListenerRef = "loggingRetryListener"
)

// NewJobListenerFromConfig creates a JobListener masking the configured parameter keys.
func NewJobListenerFromConfig(cfg *config.Config) *JobListener {
	return NewJobListener(cfg.Chunkflow.Security.MaskedParameterKeys)
}

// Register adds the logging listeners to registry.
func Register(registry *support.ComponentRegistry) {
	registry.RegisterListener(JobListenerRef, func(cfg *config.Config, _ map[string]string) (interface{}, error) {
		return NewJobListenerFromConfig(cfg), nil
	})
	registry.RegisterListener(StepListenerRef, func(*config.Config, map[string]string) (interface{}, error) {
		return NewStepListener(), nil
	})
	registry.RegisterListener(ChunkListenerRef, func(*config.Config, map[string]string) (interface{}, error) {
		return NewChunkListener(), nil
	})
	registry.RegisterListener(SkipListenerRef, func(*config.Config, map[string]string) (interface{}, error) {
		return NewSkipListener(), nil
	})
	registry.RegisterListener(RetryListenerRef, func(*config.Config, map[string]string) (interface{}, error) {
		return NewRetryListener(), nil
	})
}

// Module provides the configured JobListener and registers every logging listener.
var Module = fx.Options(
	fx.Provide(NewJobListenerFromConfig),
	fx.Invoke(Register),
)
