// Package postgres registers the PostgreSQL dialect.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

// Type is the config value selecting this dialect.
const Type = "postgres"

func init() {
	gormadaptor.RegisterDialector(Type, Dialector)
}

// DSN builds a keyword/value connection string.
func DSN(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := cfg.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database, sslmode)
}

// Dialector implements gormadaptor.DialectorFactory.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	return postgres.Open(DSN(cfg)), nil
}
