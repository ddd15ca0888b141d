package notification

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	configbinder "github.com/tigerroll/chunkflow/pkg/batch/support/util/configbinder"
)

// ListenerRef is the reference name of the notification listener in job definitions.
const ListenerRef = "notificationListener"

type listenerProperties struct {
	OnlyOnFailure bool `yaml:"onlyOnFailure"`
}

// Register adds the notification listener, bound to notifier, to registry.
func Register(registry *support.ComponentRegistry, notifier Notifier) {
	registry.RegisterListener(ListenerRef, func(_ *config.Config, properties map[string]string) (interface{}, error) {
		var props listenerProperties
		if err := configbinder.BindProperties(properties, &props); err != nil {
			return nil, err
		}
		return NewListener(notifier, props.OnlyOnFailure), nil
	})
}

// Module provides the LogNotifier as the Notifier and registers the listener. Applications
// replace the Notifier with fx.Decorate.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLogNotifier, fx.As(new(Notifier)))),
	fx.Invoke(Register),
)
