// Package listener bundles the optional listeners that job definitions can reference.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkflow/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkflow/pkg/batch/listener/notification"
	"github.com/tigerroll/chunkflow/pkg/batch/listener/tracing"
)

// Module registers every listener with the component registry.
var Module = fx.Options(
	logging.Module,
	tracing.Module,
	notification.Module,
)
