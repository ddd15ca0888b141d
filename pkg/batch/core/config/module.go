package config

import "go.uber.org/fx"

// NewLoggingConfigProvider exposes the logging section on its own.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Chunkflow.System.Logging
}

// Module provides *Config. The application must supply EmbeddedConfig.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(func() EnvironmentExpander { return NewOsEnvironmentExpander() }),
)
