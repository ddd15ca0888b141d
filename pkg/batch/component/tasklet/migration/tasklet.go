// Package migration provides a tasklet that applies the SQL migrations of an application
// database as a job step.
package migration

import (
	"context"
	"fmt"
	"io/fs"

	dbmigration "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/migration"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	configbinder "github.com/tigerroll/chunkflow/pkg/batch/support/util/configbinder"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// AppMigrationsTable tracks application migrations, apart from the job repository's own
// version table.
const AppMigrationsTable = "batch_app_migrations"

// Properties configure the tasklet from a job definition.
type Properties struct {
	// Database names a connection of the database configuration section.
	Database string `yaml:"database"`
	// FS names a registered migration file system.
	FS string `yaml:"fs"`
	// Dir is the script directory inside FS. It defaults to the database type.
	Dir     string `yaml:"dir"`
	Table   string `yaml:"table"`
	Command string `yaml:"command"`
}

// Tasklet runs one migration command.
type Tasklet struct {
	migrator *dbmigration.Migrator
	fsys     fs.FS
	dir      string
	table    string
	command  dbmigration.Command
}

// NewTasklet resolves props against cfg and the named file systems.
func NewTasklet(cfg *config.Config, fileSystems map[string]fs.FS, props Properties) (*Tasklet, error) {
	if props.Database == "" {
		return nil, exception.NewBatchErrorf("migration", "property 'database' is required")
	}
	dbCfg, ok := cfg.DatabaseByName(props.Database)
	if !ok {
		return nil, exception.NewBatchErrorf("migration", "database '%s' is not configured", props.Database)
	}
	fsys, ok := fileSystems[props.FS]
	if !ok {
		return nil, exception.NewBatchErrorf("migration", "no migration file system named '%s'", props.FS)
	}
	t := &Tasklet{
		migrator: dbmigration.NewMigrator(dbCfg),
		fsys:     fsys,
		dir:      props.Dir,
		table:    props.Table,
		command:  dbmigration.Command(props.Command),
	}
	if t.dir == "" {
		t.dir = dbCfg.Type
	}
	if t.table == "" {
		t.table = AppMigrationsTable
	}
	switch t.command {
	case "":
		t.command = dbmigration.CommandUp
	case dbmigration.CommandUp, dbmigration.CommandDown:
	default:
		return nil, exception.NewBatchErrorf("migration", "unsupported command '%s'", props.Command)
	}
	return t, nil
}

// Execute implements port.Tasklet.
func (t *Tasklet) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	if err := t.migrator.Run(ctx, t.command, t.fsys, t.dir, t.table); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(se.StepName, "migration failed", err, false, false)
	}
	se.ExecutionContext.Put("migration.command", string(t.command))
	logger.Infof("Step '%s': migration '%s' of '%s' done.", se.StepName, t.command, t.dir)
	return model.ExitStatusCompleted, nil
}

var _ port.Tasklet = (*Tasklet)(nil)

// Builder returns the registry builder of the tasklet.
func Builder(fileSystems map[string]fs.FS) func(*config.Config, map[string]string) (port.Tasklet, error) {
	return func(cfg *config.Config, properties map[string]string) (port.Tasklet, error) {
		var props Properties
		if err := configbinder.BindProperties(properties, &props); err != nil {
			return nil, fmt.Errorf("migration tasklet properties: %w", err)
		}
		return NewTasklet(cfg, fileSystems, props)
	}
}
