package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", User: "batch", Password: "p@ss", Database: "meta"})
	assert.Contains(t, dsn, "batch:p@ss@tcp(db:3306)/meta")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
