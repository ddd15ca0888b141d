// Package config holds the application configuration of chunkflow and its loader.
package config

import (
	"time"
)

// EmbeddedConfig is the raw application.yaml, usually embedded into the binary by main.
type EmbeddedConfig []byte

// LogLevel names a logging verbosity.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// ItemRetryConfig is the default retry policy for chunk steps.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"maxAttempts"`
	InitialIntervalMs   int      `yaml:"initialIntervalMs"`
	RetryableExceptions []string `yaml:"retryableExceptions"`
}

// InitialInterval returns the backoff before the first retry.
func (c ItemRetryConfig) InitialInterval() time.Duration {
	return time.Duration(c.InitialIntervalMs) * time.Millisecond
}

// ItemSkipConfig is the default skip policy for chunk steps.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skipLimit"`
	SkippableExceptions []string `yaml:"skippableExceptions"`
}

// BatchConfig holds engine defaults.
type BatchConfig struct {
	// JobName is launched when the command line does not name a job.
	JobName   string `yaml:"jobName"`
	ChunkSize int    `yaml:"chunkSize"`
	// PoolSize bounds concurrent split branches and partitions. 0 means unbounded.
	PoolSize int `yaml:"poolSize"`
	GridSize int `yaml:"gridSize"`
	// PollingIntervalSeconds is used by the operator when waiting for a stop to complete.
	PollingIntervalSeconds int             `yaml:"pollingIntervalSeconds"`
	ItemRetry              ItemRetryConfig `yaml:"itemRetry"`
	ItemSkip               ItemSkipConfig  `yaml:"itemSkip"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"maxOpenConns"`
	MaxIdleConns           int `yaml:"maxIdleConns"`
	ConnMaxLifetimeMinutes int `yaml:"connMaxLifetimeMinutes"`
}

// DatabaseConfig describes one named database connection.
type DatabaseConfig struct {
	Type     string     `yaml:"type"` // sqlite, mysql or postgres
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Database string     `yaml:"database"` // file path for sqlite
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// JobRepositoryConfig selects the metadata store.
type JobRepositoryConfig struct {
	Type        string `yaml:"type"` // inmemory or sql
	DBRef       string `yaml:"dbRef"`
	AutoMigrate bool   `yaml:"autoMigrate"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Type          string `yaml:"type"` // prometheus, otel or none
	ListenAddress string `yaml:"listenAddress"`
	Endpoint      string `yaml:"endpoint"`
	Protocol      string `yaml:"protocol"` // grpc or http, for otel
	Insecure      bool   `yaml:"insecure"`
}

// TracingConfig selects the trace exporter.
type TracingConfig struct {
	Type        string  `yaml:"type"` // otlp-grpc, otlp-http or none
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// InfrastructureConfig wires the engine to its backends.
type InfrastructureConfig struct {
	JobRepository   JobRepositoryConfig `yaml:"jobRepository"`
	Metrics         MetricsConfig       `yaml:"metrics"`
	Tracing         TracingConfig       `yaml:"tracing"`
	AsyncBufferSize int                 `yaml:"asyncBufferSize"`
}

// GCSConfig configures the Cloud Storage client used for gs:// resources.
type GCSConfig struct {
	CredentialsFile       string `yaml:"credentialsFile"`
	Endpoint              string `yaml:"endpoint"`
	WithoutAuthentication bool   `yaml:"withoutAuthentication"`
}

// StorageConfig configures resource access.
type StorageConfig struct {
	GCS GCSConfig `yaml:"gcs"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys are job parameter names rendered as ******** in logs.
	MaskedParameterKeys []string `yaml:"maskedParameterKeys"`
}

// ChunkflowConfig is everything under the top-level "chunkflow" key.
type ChunkflowConfig struct {
	Batch          BatchConfig               `yaml:"batch"`
	System         SystemConfig              `yaml:"system"`
	Database       map[string]DatabaseConfig `yaml:"database"`
	Infrastructure InfrastructureConfig      `yaml:"infrastructure"`
	Storage        StorageConfig             `yaml:"storage"`
	Security       SecurityConfig            `yaml:"security"`
}

// Config is the root of the application configuration.
type Config struct {
	Chunkflow ChunkflowConfig `yaml:"chunkflow"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Chunkflow: ChunkflowConfig{
			Batch: BatchConfig{
				ChunkSize:              10,
				GridSize:               4,
				PollingIntervalSeconds: 1,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:       0,
					InitialIntervalMs: 100,
				},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: string(LogLevelInfo)},
			},
			Database: map[string]DatabaseConfig{},
			Infrastructure: InfrastructureConfig{
				JobRepository:   JobRepositoryConfig{Type: "inmemory", DBRef: "metadata", AutoMigrate: true},
				Metrics:         MetricsConfig{Type: "none", ListenAddress: ":9090", Protocol: "grpc"},
				Tracing:         TracingConfig{Type: "none", ServiceName: "chunkflow", SampleRatio: 1},
				AsyncBufferSize: 100,
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret"},
			},
		},
	}
}

// DatabaseByName returns the named connection settings.
func (c *Config) DatabaseByName(name string) (DatabaseConfig, bool) {
	db, ok := c.Chunkflow.Database[name]
	return db, ok
}
