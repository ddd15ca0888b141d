package job

import (
	"context"
	"time"

	"github.com/tigerroll/chunkflow/example/practice/internal/domain/entity"
	"github.com/tigerroll/chunkflow/example/practice/internal/listener"
	"github.com/tigerroll/chunkflow/example/practice/internal/migrations"
	"github.com/tigerroll/chunkflow/example/practice/internal/step/processor"
	steptasklet "github.com/tigerroll/chunkflow/example/practice/internal/step/tasklet"
	"github.com/tigerroll/chunkflow/pkg/batch/component/item"
	"github.com/tigerroll/chunkflow/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	incrementer "github.com/tigerroll/chunkflow/pkg/batch/core/job/incrementer"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	validator "github.com/tigerroll/chunkflow/pkg/batch/core/job/validator"
	chunk "github.com/tigerroll/chunkflow/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/tasklet"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Job names.
const (
	AdvancedJobName    = "advancedJob"
	FlatFileJobName    = "flatFileJob"
	MultiThreadJobName = "multiThreadJob"
	ParallelJobName    = "parallelJob"
	PlainTextJobName   = "plainTextJob"
)

// Chunk sizes of the code-built steps.
const (
	playerChunkSize    = 5
	amountChunkSize    = 5
	parallelChunkSize  = 10
	plainTextChunkSize = 5
	plainTextPageSize  = 5
	anotherStepDelay   = 200 * time.Millisecond
)

// NewAdvancedJob builds advancedJob: a targetDate validator, status listeners and a
// tasklet that reads the date back.
func NewAdvancedJob(d Deps) port.Job {
	step := tasklet.NewTaskletStep("advancedStep", steptasklet.TargetDate(), d.Repository, nil,
		[]port.StepExecutionListener{listener.StepStatusListener{}}, nil)
	flow := d.Builder.Flow(AdvancedJobName).AddStep(step)
	return d.Builder.Job(AdvancedJobName, flow,
		runner.WithIncrementer(incrementer.NewRunIDIncrementer("")),
		runner.WithValidator(validator.NewDateParameterValidator(steptasklet.TargetDateParameter)),
		runner.WithJobListener(listener.JobStatusListener{}),
	)
}

// NewFlatFileJob builds flatFileJob: players are read from player-list.txt, priced by
// age and logged, and written to Parquet when Settings.SalaryParquet is set.
func NewFlatFileJob(d Deps) (port.Job, error) {
	reader := item.NewFlatFileItemReader("playerFileItemReader", d.Resources, d.Settings.Path("player-list.txt"),
		entity.MapPlayer, item.WithLinesToSkip(1))

	writers := []port.ItemWriter[entity.PlayerSalary]{
		port.ItemWriterFunc[entity.PlayerSalary](func(_ context.Context, items []entity.PlayerSalary) error {
			for _, it := range items {
				logger.Infof("%s", it)
			}
			return nil
		}),
	}
	if d.Settings.SalaryParquet != "" {
		pw, err := item.NewParquetItemWriter[entity.PlayerSalary]("playerSalaryParquetWriter", d.Resources, d.Settings.SalaryParquet, "SNAPPY")
		if err != nil {
			return nil, err
		}
		writers = append(writers, pw)
	}

	step := chunk.NewChunkStep[entity.Player, entity.PlayerSalary]("flatFileStep",
		reader, processor.NewSalaryProcessor(nil), item.NewCompositeItemWriter(writers...),
		playerChunkSize, d.Repository, nil, d.chunkOptions()...)
	flow := d.Builder.Flow(FlatFileJobName).AddStep(step)
	return d.Builder.Job(FlatFileJobName, flow, runner.WithIncrementer(incrementer.NewRunIDIncrementer(""))), nil
}

// amountStep reads the tab-delimited input.txt, multiplies every amount and writes the
// result comma-delimited to output.txt.
func (d Deps) amountStep(name string, chunkSize int) port.Step {
	reader := item.NewFlatFileItemReader("amountFileItemReader", d.Resources, d.Settings.Path("input.txt"),
		entity.MapAmount, item.WithDelimiter('\t'))
	writer := item.NewFlatFileItemWriter("amountFileItemWriter", d.Resources, d.Settings.Path("output.txt"),
		entity.AmountFields)
	return chunk.NewChunkStep[entity.Amount, entity.Amount](name, reader, processor.AmountProcessor(), writer,
		chunkSize, d.Repository, nil, d.chunkOptions()...)
}

// NewMultiThreadJob builds multiThreadJob over the amount step.
func NewMultiThreadJob(d Deps) port.Job {
	flow := d.Builder.Flow(MultiThreadJobName).AddStep(d.amountStep("multiThreadStep", amountChunkSize))
	return d.Builder.Job(MultiThreadJobName, flow, runner.WithIncrementer(incrementer.NewRunIDIncrementer("")))
}

// NewParallelJob builds parallelJob: the amount step and a slow tasklet run side by side
// in one split.
func NewParallelJob(d Deps) port.Job {
	amountFlow := d.Builder.Flow("flowAmountFileStep").AddStep(d.amountStep("amountFileStep", parallelChunkSize))
	anotherFlow := d.Builder.Flow("flowAnotherStep").
		AddStep(tasklet.NewTaskletStep("anotherStep", steptasklet.Sleeping(anotherStepDelay), d.Repository, nil, nil, nil))

	flow := d.Builder.Flow(ParallelJobName).AddFlow(d.Splits.New("splitFlow", amountFlow, anotherFlow))
	return d.Builder.Job(ParallelJobName, flow, runner.WithIncrementer(incrementer.NewRunIDIncrementer("")))
}

// NewPlainTextJob builds plainTextJob: the practice schema is migrated, then every
// plain_text row is read newest first and saved as a result_text row.
func NewPlainTextJob(d Deps) (port.Job, error) {
	db, err := d.Databases.Get(d.Settings.Database)
	if err != nil {
		return nil, err
	}
	txm, err := d.Databases.TransactionManager(d.Settings.Database)
	if err != nil {
		return nil, err
	}
	migrate, err := migration.NewTasklet(d.Config, d.migrationFileSystems(), migration.Properties{
		Database: d.Settings.Database,
		FS:       migrations.FSName,
	})
	if err != nil {
		return nil, err
	}

	reader := item.NewGormPagingItemReader[entity.PlainText]("plainTextReader", db, "id DESC", item.WithPageSize(plainTextPageSize))
	writer := item.NewGormItemWriter[entity.ResultText]("resultTextWriter", db)
	writeAndLog := port.ItemWriterFunc[entity.ResultText](func(ctx context.Context, items []entity.ResultText) error {
		if err := writer.Write(ctx, items); err != nil {
			return err
		}
		logger.Infof("=== chunk of %d texts is finished", len(items))
		return nil
	})

	flow := d.Builder.Flow(PlainTextJobName).
		AddStep(tasklet.NewTaskletStep("migrateStep", migrate, d.Repository, nil, nil, nil)).
		AddStep(chunk.NewChunkStep[entity.PlainText, entity.ResultText]("plainTextStep",
			reader, processor.PlainTextProcessor(), writeAndLog,
			plainTextChunkSize, d.Repository, txm, d.chunkOptions()...))
	return d.Builder.Job(PlainTextJobName, flow, runner.WithIncrementer(incrementer.NewRunIDIncrementer(""))), nil
}
