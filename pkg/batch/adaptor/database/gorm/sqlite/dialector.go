// Package sqlite registers the SQLite dialect.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

// Type is the config value selecting this dialect.
const Type = "sqlite"

func init() {
	gormadaptor.RegisterDialector(Type, Dialector)
}

// DSN returns the SQLite data source name. The database field holds a file path or
// ":memory:"; foreign keys are always enabled.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.Database == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	return "file:" + cfg.Database + "?_foreign_keys=on&_busy_timeout=5000"
}

// Dialector implements gormadaptor.DialectorFactory.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.Database == "" {
		return nil, errors.New("sqlite database path cannot be empty")
	}
	return sqlite.Open(DSN(cfg)), nil
}
