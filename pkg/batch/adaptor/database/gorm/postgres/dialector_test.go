package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

func TestDSN_Defaults(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "pg", User: "u", Password: "p", Database: "meta"})
	assert.Equal(t, "host=pg port=5432 user=u password=p dbname=meta sslmode=disable", dsn)
}
