package usecase

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
)

// JobsParams collects every job provided into the "jobs" group.
type JobsParams struct {
	fx.In
	Jobs []port.Job `group:"jobs"`
}

// Module provides the registry, launcher, operator and explorer.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(p JobsParams) (*MapJobRegistry, error) { return NewMapJobRegistry(p.Jobs...) },
			fx.As(new(JobRegistry)),
		),
		NewSimpleJobLauncher,
		fx.Annotate(func(l *SimpleJobLauncher) *SimpleJobLauncher { return l }, fx.As(new(JobLauncher))),
		fx.Annotate(NewDefaultJobOperator, fx.As(new(JobOperator))),
		fx.Annotate(NewSimpleJobExplorer, fx.As(new(JobExplorer))),
	),
)
