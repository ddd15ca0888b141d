// Package repository selects the JobRepository implementation from configuration.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
	domain "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// NewJobRepository builds the repository named by infrastructure.jobRepository.type.
// The sql variant migrates its schema first when autoMigrate is set.
func NewJobRepository(ctx context.Context, cfg *config.Config, provider *gormadaptor.Provider) (domain.JobRepository, error) {
	repoCfg := cfg.Chunkflow.Infrastructure.JobRepository
	switch repoCfg.Type {
	case "", "inmemory":
		logger.Infof("Using in-memory JobRepository.")
		return inmemory.NewInMemoryJobRepository(), nil
	case "sql":
		dbCfg, ok := cfg.DatabaseByName(repoCfg.DBRef)
		if !ok {
			return nil, fmt.Errorf("jobRepository.dbRef '%s' does not name a database", repoCfg.DBRef)
		}
		db, err := provider.Get(repoCfg.DBRef)
		if err != nil {
			return nil, err
		}
		if repoCfg.AutoMigrate {
			if err := sqlrepo.Migrate(ctx, dbCfg); err != nil {
				return nil, err
			}
		}
		logger.Infof("Using SQL JobRepository on '%s' (%s).", repoCfg.DBRef, dbCfg.Type)
		return sqlrepo.NewSQLJobRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown jobRepository.type '%s'", repoCfg.Type)
	}
}

// Module provides domain.JobRepository and exposes it as the ExecutionContextStore.
var Module = fx.Options(
	fx.Provide(func(cfg *config.Config, provider *gormadaptor.Provider) (domain.JobRepository, error) {
		return NewJobRepository(context.Background(), cfg, provider)
	}),
	fx.Provide(func(r domain.JobRepository) port.ExecutionContextStore { return r }),
)
