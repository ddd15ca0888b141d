// Package migrations embeds the schema of the practice database.
package migrations

import (
	"embed"

	"github.com/tigerroll/chunkflow/pkg/batch/component/tasklet/migration"
)

// FSName is the name the migration tasklet knows this file system by.
const FSName = "practice"

//go:embed sqlite/*.sql
var files embed.FS

// FS returns the scripts, one directory per database type.
func FS() migration.NamedFS {
	return migration.NamedFS{Name: FSName, FS: files}
}
