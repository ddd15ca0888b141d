package metrics

import (
	"go.uber.org/fx"
)

// Module provides no-op fallbacks. Infrastructure modules decorate them with real backends.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewNoOpMetricRecorder, fx.As(new(MetricRecorder)))),
	fx.Provide(fx.Annotate(NewNoOpTracer, fx.As(new(Tracer)))),
)
