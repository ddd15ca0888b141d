package sql

import (
	"context"
	"embed"

	"github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/migration"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

// MigrationsTable records the applied schema version of the metadata tables.
const MigrationsTable = "batch_schema_migrations"

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the metadata schema of the database described by dbCfg up to date.
func Migrate(ctx context.Context, dbCfg config.DatabaseConfig) error {
	return migration.NewMigrator(dbCfg).Up(ctx, migrationsFS, "migrations/"+dbCfg.Type, MigrationsTable)
}
