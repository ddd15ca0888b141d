package generic

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	configbinder "github.com/tigerroll/chunkflow/pkg/batch/support/util/configbinder"
)

// Registry names of the generic tasklets.
const (
	ExecutionContextWriterRef = "executionContextWriter"
	FailingTaskletRef         = "failingTasklet"
)

type failingProperties struct {
	FailCount int     `yaml:"failCount"`
	FailRate  float64 `yaml:"failRate"`
}

// Register adds the generic tasklets to registry.
func Register(registry *support.ComponentRegistry) {
	registry.RegisterTasklet(ExecutionContextWriterRef, func(_ *config.Config, properties map[string]string) (port.Tasklet, error) {
		return NewExecutionContextWriter(properties), nil
	})
	registry.RegisterTasklet(FailingTaskletRef, func(_ *config.Config, properties map[string]string) (port.Tasklet, error) {
		var props failingProperties
		if err := configbinder.BindProperties(properties, &props); err != nil {
			return nil, err
		}
		return &FailingTasklet{FailCount: props.FailCount, FailRate: props.FailRate}, nil
	})
}

// Module registers the generic tasklets.
var Module = fx.Invoke(Register)
