// Package config loads the broker configuration from biobroker.yml and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the biobroker configuration
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Store    StoreConfig    `mapstructure:"store"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Staging  StagingConfig  `mapstructure:"staging"`
}

// RegistryConfig represents the metadata registry connection
type RegistryConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// UploadConfig represents the upload service connection
type UploadConfig struct {
	URL        string `mapstructure:"url"`
	APIVersion string `mapstructure:"api_version"`
	APIKey     string `mapstructure:"api_key"`
}

// StoreConfig represents the downstream store connection
type StoreConfig struct {
	URL     string `mapstructure:"url"`
	Replica string `mapstructure:"replica"`
}

// SchemaConfig represents the schema catalog sources
type SchemaConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	MigrationsURL string `mapstructure:"migrations_url"`
}

// StagingConfig represents staging lock tuning
type StagingConfig struct {
	WaitTimeMillis int    `mapstructure:"wait_time_millis"`
	WaitAttempts   int    `mapstructure:"wait_attempts"`
	RedisURL       string `mapstructure:"redis_url"`
}

// envBindings maps config keys to the environment variables recognized at
// the boundary.
var envBindings = map[string]string{
	"registry.url":             "INGEST_API_URL",
	"registry.token":           "INGEST_API_TOKEN",
	"upload.url":               "UPLOAD_API_URL",
	"upload.api_version":       "UPLOAD_API_VERSION",
	"upload.api_key":           "UPLOAD_API_KEY",
	"store.url":                "DSS_API_URL",
	"schema.base_url":          "SCHEMA_BASE_URL",
	"schema.migrations_url":    "MIGRATIONS_URL",
	"staging.wait_time_millis": "STAGING_WAIT_TIME_MILLIS",
	"staging.wait_attempts":    "STAGING_WAIT_ATTEMPTS",
	"staging.redis_url":        "STAGING_REDIS_URL",
}

// Load loads the configuration from biobroker.yml or biobroker.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("upload.api_version", "v1")
	v.SetDefault("store.replica", "aws")
	v.SetDefault("staging.wait_time_millis", 250)
	v.SetDefault("staging.wait_attempts", 5)

	// Set config name and paths
	v.SetConfigName("biobroker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// StagingWaitInterval converts the configured wait time to a duration
func (c *Config) StagingWaitInterval() time.Duration {
	return time.Duration(c.Staging.WaitTimeMillis) * time.Millisecond
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Registry.URL == "" {
		return fmt.Errorf("registry url is required (set INGEST_API_URL or registry.url)")
	}
	return nil
}
