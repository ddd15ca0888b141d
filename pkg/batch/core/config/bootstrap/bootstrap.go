// Package bootstrap applies the logging configuration and turns the embedded job
// definitions into jobs for the job registry.
package bootstrap

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkflow/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// ApplyLoggingConfig sets the log level from the configuration.
func ApplyLoggingConfig(cfg *config.Config) {
	if level := cfg.Chunkflow.System.Logging.Level; level != "" {
		logger.SetLogLevel(level)
		logger.Infof("Log level set to: %s", level)
	}
}

// DefinitionParams are the inputs of DefinedJobs.
type DefinitionParams struct {
	fx.In
	Definitions jsl.DefinitionBytes `optional:"true"`
	Expander    config.EnvironmentExpander
	Factory     *support.JobFactory
}

// DefinedJobs contributes the jobs built from the job definitions to the "jobs" group.
type DefinedJobs struct {
	fx.Out
	Jobs []port.Job `group:"jobs,flatten"`
}

// BuildDefinedJobs parses the job definitions and builds every job they declare. It runs
// when the job registry is first needed, so components must be registered by earlier
// invokes.
func BuildDefinedJobs(p DefinitionParams) (DefinedJobs, error) {
	if len(p.Definitions) == 0 {
		logger.Debugf("No job definitions supplied.")
		return DefinedJobs{}, nil
	}
	defs, err := jsl.Load(p.Definitions, p.Expander)
	if err != nil {
		return DefinedJobs{}, err
	}
	jobs, err := p.Factory.BuildAll(defs)
	if err != nil {
		return DefinedJobs{}, err
	}
	return DefinedJobs{Jobs: jobs}, nil
}

// Module applies the logging configuration and provides the defined jobs.
var Module = fx.Options(
	fx.Invoke(ApplyLoggingConfig),
	fx.Provide(BuildDefinedJobs),
)
