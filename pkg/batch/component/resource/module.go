package resource

import (
	"context"

	"go.uber.org/fx"
)

// Module provides Resources and closes them on shutdown.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, r *Resources) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.Close() }})
	}),
)
