package support

import (
	"go.uber.org/fx"
)

// Module provides the ComponentRegistry and the JobFactory. Component packages register
// their builders through fx.Invoke before jobs are built.
var Module = fx.Options(
	fx.Provide(NewComponentRegistry),
	fx.Provide(NewJobFactory),
)
