package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/spendlens/graphcache/pkg/models"
)

// Config holds all configuration for graphcache.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
type Config struct {
	// LogLevel controls zap verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Cache is where the ontology cache lives.
	Cache CacheConfig `yaml:"cache"`

	// Datasources enumerates the sources graphs can be built from,
	// addressed by name in every service call.
	Datasources []DatasourceConfig `yaml:"datasources"`

	// Build holds default build-time budgets.
	Build BuildConfig `yaml:"build"`
}

// CacheConfig holds cache store settings.
type CacheConfig struct {
	// Path is the SQLite file backing the cache. ":memory:" is accepted for tests.
	Path string `yaml:"path" env:"GRAPHCACHE_PATH" env-default:"graphcache.db"`
}

// DatasourceConfig describes one named data source.
// The DSN is treated as an opaque string owned by the adapter type.
type DatasourceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "sqlite" or "hana"
	DSN  string `yaml:"dsn" env:"-"`
}

// BuildConfig holds default budgets applied when callers omit options.
type BuildConfig struct {
	// MaxRecords is the default per-table record budget for data-mode builds.
	MaxRecords int `yaml:"max_records" env:"GRAPHCACHE_MAX_RECORDS" env-default:"20"`
}

// Load reads configuration from the given YAML path with env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Build.MaxRecords < 0 || c.Build.MaxRecords > models.MaxRecordsLimit {
		return fmt.Errorf("build.max_records must be between 0 and %d, got %d", models.MaxRecordsLimit, c.Build.MaxRecords)
	}

	seen := make(map[string]bool, len(c.Datasources))
	for _, ds := range c.Datasources {
		if ds.Name == "" {
			return fmt.Errorf("datasource entries require a name")
		}
		if ds.Type == "" {
			return fmt.Errorf("datasource %q requires a type", ds.Name)
		}
		if seen[ds.Name] {
			return fmt.Errorf("duplicate datasource name %q", ds.Name)
		}
		seen[ds.Name] = true
	}

	return nil
}

// Datasource looks up a datasource entry by name.
func (c *Config) Datasource(name string) (*DatasourceConfig, bool) {
	for i := range c.Datasources {
		if c.Datasources[i].Name == name {
			return &c.Datasources[i], true
		}
	}
	return nil, false
}
