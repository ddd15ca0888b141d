package tracing

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
)

// EventListenerRef is the reference name of the EventListener in job definitions.
const EventListenerRef = "tracingEventListener"

// Register adds the EventListener, bound to tracer, to registry.
func Register(registry *support.ComponentRegistry, tracer metrics.Tracer) {
	registry.RegisterListener(EventListenerRef, func(*config.Config, map[string]string) (interface{}, error) {
		return NewEventListener(tracer), nil
	})
}

// Module registers the tracing listeners.
var Module = fx.Invoke(Register)
