package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

const sampleYAML = `
chunkflow:
  batch:
    jobName: flatFileJob
    chunkSize: 5
    gridSize: 8
  system:
    logging:
      level: DEBUG
  database:
    metadata:
      type: sqlite
      database: ${CHUNKFLOW_TEST_DB_PATH}
  infrastructure:
    jobRepository:
      type: sql
`

func TestLoadConfig_DefaultsYAMLAndEnv(t *testing.T) {
	t.Setenv("CHUNKFLOW_TEST_DB_PATH", "/tmp/meta.db")
	t.Setenv("CHUNKFLOW_BATCH_CHUNK_SIZE", "7")
	t.Setenv("CHUNKFLOW_INFRASTRUCTURE_METRICS_TYPE", "prometheus")
	t.Setenv("CHUNKFLOW_DATABASE_METADATA_PORT", "5432")
	t.Setenv("CHUNKFLOW_DATABASE_APP_TYPE", "mysql")
	t.Setenv("CHUNKFLOW_SECURITY_MASKED_PARAMETER_KEYS", "token, password")

	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	c := cfg.Chunkflow
	assert.Equal(t, "flatFileJob", c.Batch.JobName)
	assert.Equal(t, 7, c.Batch.ChunkSize, "env overrides yaml")
	assert.Equal(t, 8, c.Batch.GridSize)
	assert.Equal(t, 1, c.Batch.PollingIntervalSeconds, "default kept")
	assert.Equal(t, "sql", c.Infrastructure.JobRepository.Type)
	assert.Equal(t, "metadata", c.Infrastructure.JobRepository.DBRef)
	assert.Equal(t, "prometheus", c.Infrastructure.Metrics.Type)
	assert.Equal(t, []string{"token", "password"}, c.Security.MaskedParameterKeys)

	meta, ok := cfg.DatabaseByName("metadata")
	require.True(t, ok)
	assert.Equal(t, "/tmp/meta.db", meta.Database)
	assert.Equal(t, 5432, meta.Port)

	app, ok := cfg.DatabaseByName("app")
	require.True(t, ok)
	assert.Equal(t, "mysql", app.Type)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("chunkflow: ["))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	t.Setenv("CHUNKFLOW_BATCH_GRID_SIZE", "many")
	_, err := LoadConfig("", EmbeddedConfig(""))
	assert.ErrorContains(t, err, "CHUNKFLOW_BATCH_GRID_SIZE")
}

func TestApply_MasksParametersAndRejectsUnknownExceptions(t *testing.T) {
	defer model.SetMaskedParameterKeys(nil)
	cfg := NewConfig()
	cfg.Chunkflow.Security.MaskedParameterKeys = []string{"token"}
	require.NoError(t, Apply(cfg))
	params := model.NewJobParameters().PutString("token", "abc")
	assert.NotContains(t, params.String(), "abc")

	cfg.Chunkflow.Batch.ItemSkip.SkippableExceptions = []string{"NoSuchError"}
	assert.Error(t, Apply(cfg))
}

func TestEnvSegment(t *testing.T) {
	assert.Equal(t, "CHUNK_SIZE", envSegment("chunkSize"))
	assert.Equal(t, "JOB_REPOSITORY", envSegment("jobRepository"))
	assert.Equal(t, "HOST", envSegment("host"))
}
