package main

import (
	"go.uber.org/fx"

	practicejob "github.com/tigerroll/chunkflow/example/practice/internal/job"
	"github.com/tigerroll/chunkflow/example/practice/internal/migrations"
	practicetasklet "github.com/tigerroll/chunkflow/example/practice/internal/step/tasklet"
	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	_ "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm/mysql"
	_ "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm/postgres"
	_ "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm/sqlite"
	"github.com/tigerroll/chunkflow/pkg/batch/component/flow"
	"github.com/tigerroll/chunkflow/pkg/batch/component/item"
	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	"github.com/tigerroll/chunkflow/pkg/batch/component/tasklet/generic"
	"github.com/tigerroll/chunkflow/pkg/batch/component/tasklet/migration"
	usecase "github.com/tigerroll/chunkflow/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	bootstrap "github.com/tigerroll/chunkflow/pkg/batch/core/config/bootstrap"
	jsl "github.com/tigerroll/chunkflow/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/split"
	coremetrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/executor"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/partition"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/worker"
	inframetrics "github.com/tigerroll/chunkflow/pkg/batch/infrastructure/metrics"
	repository "github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository"
	batchlistener "github.com/tigerroll/chunkflow/pkg/batch/listener"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// applicationOptions assembles the practice application. Component registrations are
// invoked before bootstrap and the job registry, which build jobs from the registry.
func applicationOptions(envFilePath string, settings practicejob.Settings) []fx.Option {
	return []fx.Option{
		fx.Supply(
			config.EmbeddedConfig(embeddedConfig),
			jsl.DefinitionBytes(embeddedJSL),
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			settings,
		),
		logger.Module,
		config.Module,

		gormadaptor.Module,
		resource.Module,
		repository.Module,
		coremetrics.Module,
		inframetrics.Module,

		worker.Module,
		executor.Module,
		runner.Module,
		split.Module,
		partition.Module,
		support.Module,

		item.Module,
		flow.Module,
		generic.Module,
		fx.Provide(migration.AsMigrationFS(migrations.FS)),
		migration.Module,
		batchlistener.Module,
		practicetasklet.Module,

		bootstrap.Module,
		practicejob.Module,
		usecase.Module,
	}
}

// commands are the services main drives once the application has started.
type commands struct {
	fx.In
	Launcher *usecase.SimpleJobLauncher
	Operator usecase.JobOperator
	Explorer usecase.JobExplorer
	Config   *config.Config
}
