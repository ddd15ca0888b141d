// Package migration applies versioned SQL scripts with golang-migrate. Scripts are read
// from an fs.FS, normally an embed.FS with one directory per dialect.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Command is a migration direction.
type Command string

const (
	CommandUp   Command = "up"
	CommandDown Command = "down"
)

// Migrator runs migrations against one database.
type Migrator struct {
	cfg config.DatabaseConfig
}

// NewMigrator creates a Migrator for the given connection settings. Each run opens its
// own connection, because closing a migrate instance also closes the database handle.
func NewMigrator(cfg config.DatabaseConfig) *Migrator {
	return &Migrator{cfg: cfg}
}

// Up applies all pending migrations found in dir. No pending migrations is not an error.
func (m *Migrator) Up(ctx context.Context, fsys fs.FS, dir, table string) error {
	return m.Run(ctx, CommandUp, fsys, dir, table)
}

// Run executes command using the scripts in dir and the version table named table.
func (m *Migrator) Run(ctx context.Context, command Command, fsys fs.FS, dir, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Infof("Executing migration '%s' (type: %s, dir: %s, table: %s)", command, m.cfg.Type, dir, table)

	db, err := gormadaptor.Open(m.cfg)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("open migration source %s: %w", dir, err)
	}
	driver, err := m.databaseDriver(sqlDB, table)
	if err != nil {
		_ = src.Close()
		_ = sqlDB.Close()
		return err
	}
	inst, err := migrate.NewWithInstance("iofs", src, m.cfg.Type, driver)
	if err != nil {
		_ = src.Close()
		_ = sqlDB.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer inst.Close()

	switch command {
	case CommandUp:
		err = inst.Up()
	case CommandDown:
		err = inst.Down()
	default:
		return fmt.Errorf("unsupported migration command: %s", command)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed (type: %s, dir: %s): %w", command, m.cfg.Type, dir, err)
	}
	version, dirty, _ := inst.Version()
	logger.Infof("Migration '%s' completed (version: %d, dirty: %t).", command, version, dirty)
	return nil
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB, table string) (database.Driver, error) {
	switch m.cfg.Type {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.cfg.Type)
	}
}
