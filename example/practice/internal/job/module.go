// Package job builds the practice jobs that are assembled in code rather than in
// jobs.yaml. Every job is provided into the "jobs" group read by the job registry.
package job

import (
	"io/fs"
	"path/filepath"

	"go.uber.org/fx"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	"github.com/tigerroll/chunkflow/pkg/batch/component/tasklet/migration"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/split"
	chunk "github.com/tigerroll/chunkflow/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/skip"
)

// Settings locate the files the jobs read and write.
type Settings struct {
	// DataDir holds player-list.txt and input.txt; output.txt is written there too.
	DataDir string
	// SalaryParquet, when set, is the Parquet file flatFileJob writes salaries to.
	SalaryParquet string
	// Database names the connection of plainTextJob.
	Database string
}

// Path returns name inside the data directory.
func (s Settings) Path(name string) string { return filepath.Join(s.DataDir, name) }

// Deps are the engine services the job builders use.
type Deps struct {
	fx.In
	Config     *config.Config
	Settings   Settings
	Builder    *runner.Builder
	Splits     *split.Factory
	Repository repository.JobRepository
	Resources  *resource.Resources
	Databases  *gormadaptor.Provider
	Migrations []migration.NamedFS `group:"migrationFS"`
}

func (d Deps) chunkOptions() []chunk.Option {
	batch := d.Config.Chunkflow.Batch
	return []chunk.Option{
		chunk.WithRetryPolicy(retry.FromConfig(batch.ItemRetry)),
		chunk.WithSkipPolicy(skip.FromConfig(batch.ItemSkip)),
		chunk.WithMetricRecorder(d.Builder.Recorder),
		chunk.WithTracer(d.Builder.Tracer),
	}
}

func (d Deps) migrationFileSystems() map[string]fs.FS {
	out := make(map[string]fs.FS, len(d.Migrations))
	for _, m := range d.Migrations {
		out[m.Name] = m.FS
	}
	return out
}

func asJob(f interface{}) interface{} {
	return fx.Annotate(f, fx.ResultTags(`group:"jobs"`))
}

// Module provides the code-built practice jobs.
var Module = fx.Provide(
	asJob(NewAdvancedJob),
	asJob(NewFlatFileJob),
	asJob(NewMultiThreadJob),
	asJob(NewParallelJob),
	asJob(NewPlainTextJob),
)
