package migration

import (
	"io/fs"

	"go.uber.org/fx"

	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// TaskletRef is the registry name of the migration tasklet.
const TaskletRef = "migrationTasklet"

// NamedFS is a migration file system contributed to the "migrationFS" group.
type NamedFS struct {
	Name string
	FS   fs.FS
}

// AsMigrationFS annotates a constructor returning NamedFS for the "migrationFS" group.
func AsMigrationFS(f interface{}) interface{} {
	return fx.Annotate(f, fx.ResultTags(`group:"migrationFS"`))
}

type registerParams struct {
	fx.In
	Registry    *support.ComponentRegistry
	FileSystems []NamedFS `group:"migrationFS"`
}

// Register adds the migration tasklet to the registry.
func Register(p registerParams) {
	byName := make(map[string]fs.FS, len(p.FileSystems))
	for _, nfs := range p.FileSystems {
		byName[nfs.Name] = nfs.FS
	}
	p.Registry.RegisterTasklet(TaskletRef, Builder(byName))
	logger.Debugf("Component '%s' registered with %d migration file systems.", TaskletRef, len(byName))
}

// Module registers the migration tasklet.
var Module = fx.Invoke(Register)
