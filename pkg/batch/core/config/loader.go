package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

const moduleName = "config"

// Environment overrides are named after the yaml path from the root, so the top-level
// "chunkflow" key yields the CHUNKFLOW_ prefix, e.g. CHUNKFLOW_BATCH_CHUNK_SIZE.

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// LoadConfig builds a Config from defaults, the embedded YAML and the environment.
// Placeholders such as ${DB_PASSWORD} in the YAML are expanded after the .env file is
// loaded, so both sources can feed them.
//
// Parameters:
//
//	envFilePath: optional .env file. When empty, ./.env is tried quietly.
//	embedded: application.yaml contents.
//
// Returns:
//
//	The merged configuration, or a BatchError when the YAML or an override is invalid.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found: %v", err)
	}

	cfg := NewConfig()
	expanded, err := NewOsEnvironmentExpander().Expand(embedded)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to apply environment overrides", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider is the fx constructor for *Config. Besides loading, it applies the
// settings other packages read globally: log level and masked parameter keys.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	if err := Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply pushes process-wide settings from cfg and validates exception names used by the
// retry and skip defaults.
func Apply(cfg *Config) error {
	logger.SetLogLevel(cfg.Chunkflow.System.Logging.Level)
	logger.Debugf("Log level set to: %s", logger.GetLogLevel())
	model.SetMaskedParameterKeys(cfg.Chunkflow.Security.MaskedParameterKeys)

	if err := checkExceptionNames(cfg.Chunkflow.Batch.ItemRetry.RetryableExceptions, "itemRetry"); err != nil {
		return exception.NewBatchError(moduleName, "invalid retry configuration", err, false, false)
	}
	if err := checkExceptionNames(cfg.Chunkflow.Batch.ItemSkip.SkippableExceptions, "itemSkip"); err != nil {
		return exception.NewBatchError(moduleName, "invalid skip configuration", err, false, false)
	}
	return nil
}

func checkExceptionNames(names []string, section string) error {
	for _, name := range names {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s references unknown exception '%s'", section, name)
		}
	}
	return nil
}

// envSegment converts a yaml tag such as "chunkSize" to "CHUNK_SIZE".
func envSegment(tag string) string {
	var b strings.Builder
	for i, r := range tag {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

// loadStructFromEnv walks val and overrides every tagged field found in the environment.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		tag := yamlName(typ.Field(i))
		if tag == "" || tag == "-" {
			continue
		}
		name := envSegment(tag)
		if prefix != "" {
			name = prefix + "_" + name
		}

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, name); err != nil {
				return err
			}
		case field.Kind() == reflect.Map && field.Type().Elem().Kind() == reflect.Struct:
			if err := loadMapOfStructsFromEnv(field, name+"_"); err != nil {
				return err
			}
		default:
			value, ok := os.LookupEnv(name)
			if !ok {
				continue
			}
			if err := setField(field, value); err != nil {
				return fmt.Errorf("env %s: %w", name, err)
			}
		}
	}
	return nil
}

// loadMapOfStructsFromEnv handles named sections such as
// CHUNKFLOW_DATABASE_METADATA_HOST, where METADATA becomes the lower-cased map key.
func loadMapOfStructsFromEnv(mapField reflect.Value, prefix string) error {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	elemType := mapField.Type().Elem()
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts := strings.SplitN(kv[0], "_", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(parts[0])

		elem := reflect.New(elemType).Elem()
		if existing := mapField.MapIndex(reflect.ValueOf(key)); existing.IsValid() {
			elem.Set(existing)
		}
		if err := setStructFieldFromEnv(elem, parts[1], kv[1]); err != nil {
			return fmt.Errorf("env %s: %w", prefix+kv[0], err)
		}
		mapField.SetMapIndex(reflect.ValueOf(key), elem)
	}
	return nil
}

func setStructFieldFromEnv(structVal reflect.Value, fieldName, value string) error {
	typ := structVal.Type()
	for i := 0; i < typ.NumField(); i++ {
		if envSegment(yamlName(typ.Field(i))) == fieldName {
			return setField(structVal.Field(i), value)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
	return nil
}
