// Package gorm opens gorm connections from configuration and adapts them to the
// transaction abstraction used by chunk steps. Dialects register themselves from the
// sqlite, mysql and postgres subpackages; import the ones a binary needs.
package gorm

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// DialectorFactory builds a gorm.Dialector from connection settings.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorMu       sync.RWMutex
	dialectorRegistry = make(map[string]DialectorFactory)
)

// RegisterDialector registers factory for dbType, replacing any previous registration.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMu.Lock()
	defer dialectorMu.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory returns the factory registered for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMu.RLock()
	defer dialectorMu.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type '%s' (registered: %v)", dbType, registeredTypesLocked())
	}
	return factory, nil
}

func registeredTypesLocked() []string {
	types := make([]string, 0, len(dialectorRegistry))
	for t := range dialectorRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
