package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigFileEnv names an optional YAML file layered on top of the embedded configuration.
const ConfigFileEnv = "CITIBIKE_CONFIG_FILE"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig builds the configuration in this order:
//  1. defaults from NewConfig
//  2. the embedded YAML, with ${VAR} and ${VAR:-default} placeholders expanded
//  3. the file named by CITIBIKE_CONFIG_FILE, if set
//  4. environment variables derived from the yaml tags (CITIBIKE_PIPELINE_DATA_DIR, ...)
//
// envFilePath is loaded with godotenv before anything else; a missing file is not an error.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(expandEnv(embedded), cfg); err != nil {
			return nil, exception.NewKindError(exception.KindConfig, moduleName, "failed to unmarshal embedded config", err)
		}
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, exception.NewKindError(exception.KindConfig, moduleName, fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(expandEnv(raw), cfg); err != nil {
			return nil, exception.NewKindError(exception.KindConfig, moduleName, fmt.Sprintf("failed to unmarshal config file %s", path), err)
		}
		logger.Debugf("Layered configuration file %s.", path)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewKindError(exception.KindConfig, moduleName, "failed to load config from environment variables", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a step.
func (c *Config) Validate() error {
	cb := c.Citibike
	if cb.Pipeline.DataDir == "" {
		return exception.NewKindError(exception.KindConfig, moduleName, "pipeline.data_dir must not be empty", nil)
	}
	if cb.Pipeline.ProbeTimeout <= 0 || cb.Pipeline.DownloadTimeout <= 0 {
		return exception.NewKindError(exception.KindConfig, moduleName, "pipeline timeouts must be positive", nil)
	}
	if cb.Warehouse.BatchSize <= 0 {
		return exception.NewKindError(exception.KindConfig, moduleName, "warehouse.batch_size must be positive", nil)
	}
	if _, err := time.LoadLocation(cb.System.Timezone); err != nil {
		return exception.NewKindError(exception.KindConfig, moduleName, fmt.Sprintf("unknown system.timezone %q", cb.System.Timezone), err)
	}
	return nil
}

// Location returns the configured system timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Citibike.System.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DecodeAdapter decodes a named connection definition from adapter.database or
// adapter.storage into out, matching keys against yaml tags.
func DecodeAdapter(section map[string]interface{}, name string, out interface{}) error {
	raw, ok := section[name]
	if !ok {
		return fmt.Errorf("connection configuration '%s' not found", name)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder for '%s': %w", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode configuration for '%s': %w", name, err)
	}
	return nil
}

// expandEnv expands ${VAR} and ${VAR:-default} placeholders.
func expandEnv(input []byte) []byte {
	return []byte(os.Expand(string(input), func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	}))
}

// loadStructFromEnv recursively loads values into a struct from environment variables.
// The variable name is the upper-cased chain of yaml tags joined with "_".
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface:
			loadConnectionMapFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadConnectionMapFromEnv overrides connection definitions held in a
// map[string]interface{}. CITIBIKE_ADAPTER_DATABASE_WAREHOUSE_HOST=db sets key
// "host" of connection "warehouse". Connection names must not contain "_".
func loadConnectionMapFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		keyAndField, value, ok := strings.Cut(strings.TrimPrefix(env, prefix), "=")
		if !ok {
			continue
		}
		connName, fieldName, ok := strings.Cut(keyAndField, "_")
		if !ok || connName == "" || fieldName == "" {
			continue
		}
		connName = strings.ToLower(connName)

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(connName)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				entry = m
			}
		}
		entry[strings.ToLower(fieldName)] = value
		mapField.SetMapIndex(reflect.ValueOf(connName), reflect.ValueOf(entry))
	}
}

// setField sets a scalar field from its string form.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
