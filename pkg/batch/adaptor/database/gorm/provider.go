package gorm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
	"github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Provider opens and caches one *gorm.DB per named connection of the "database" config
// section.
type Provider struct {
	cfg *config.Config

	mu          sync.Mutex
	connections map[string]*gorm.DB
}

// NewProvider creates a Provider. Connections are opened lazily.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{cfg: cfg, connections: make(map[string]*gorm.DB)}
}

// Get returns the connection named name, opening it on first use.
func (p *Provider) Get(name string) (*gorm.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.connections[name]; ok {
		return db, nil
	}
	dbCfg, ok := p.cfg.DatabaseByName(name)
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found", name)
	}
	db, err := Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database '%s': %w", name, err)
	}
	p.connections[name] = db
	logger.Infof("Established DB connection: %s (%s)", name, dbCfg.Type)
	return db, nil
}

// TransactionManager implements tx.ManagerResolver. An empty name selects the
// resourceless manager.
func (p *Provider) TransactionManager(name string) (tx.TransactionManager, error) {
	if name == "" {
		return tx.NewResourcelessTransactionManager(), nil
	}
	db, err := p.Get(name)
	if err != nil {
		return nil, err
	}
	return NewGormTransactionManager(db), nil
}

// Type returns the configured dialect of the named connection.
func (p *Provider) Type(name string) string {
	dbCfg, _ := p.cfg.DatabaseByName(name)
	return dbCfg.Type
}

// CloseAll closes every opened connection.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, db := range p.connections {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(p.connections, name)
	}
	return firstErr
}

// Open connects to a single database and applies pool settings.
func Open(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(dbCfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("create dialector for %s: %w", dbCfg.Type, err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(config.LogLevelSilent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dbCfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbCfg.Pool.MaxOpenConns)
	}
	if dbCfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbCfg.Pool.MaxIdleConns)
	}
	if dbCfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbCfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// NewGormLogger routes gorm's logging into the package logger at the given level.
func NewGormLogger(level config.LogLevel) gormlogger.Interface {
	var lvl gormlogger.LogLevel
	switch level {
	case config.LogLevelError:
		lvl = gormlogger.Error
	case config.LogLevelWarn:
		lvl = gormlogger.Warn
	case config.LogLevelInfo, config.LogLevelDebug:
		lvl = gormlogger.Info
	default:
		lvl = gormlogger.Silent
	}
	return gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

type gormWriter struct{}

// Printf implements gormlogger.Writer. Statement traces go to DEBUG, everything else to INFO.
func (gormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if strings.Contains(msg, "SELECT") || strings.Contains(msg, "INSERT") ||
		strings.Contains(msg, "UPDATE") || strings.Contains(msg, "DELETE") {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Infof("[GORM] %s", msg)
}
