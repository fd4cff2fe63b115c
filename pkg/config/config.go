package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for insight-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Index store configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Tabular query engine configuration
	Tabular TabularConfig `yaml:"tabular"`

	// Index build defaults and limits
	Indexing IndexingConfig `yaml:"indexing"`
}

// DatabaseConfig holds PostgreSQL index-store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"insight"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"insight_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string for the index store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// TabularConfig holds settings for the tabular query engine adapters.
type TabularConfig struct {
	// SQLitePath is the ingest database holding uploaded CSV datasets.
	SQLitePath string `yaml:"sqlite_path" env:"TABULAR_SQLITE_PATH" env-default:"data/datasets.db"`
	// QueryTimeoutSeconds bounds every read issued against a dataset source.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"TABULAR_QUERY_TIMEOUT_SECONDS" env-default:"30"`
}

// QueryTimeout returns the per-query timeout as a duration.
func (c *TabularConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// IndexingConfig holds index build defaults and resource limits.
type IndexingConfig struct {
	// SampleRows is the default bounded sample size per build.
	SampleRows int `yaml:"sample_rows" env:"INDEXING_SAMPLE_ROWS" env-default:"10000"`
	// MaxColumnsForCorrelation caps the association engine's column subset.
	MaxColumnsForCorrelation int `yaml:"max_columns_for_correlation" env:"INDEXING_MAX_CORRELATION_COLUMNS" env-default:"25"`
	// TopKEdgesPerColumn caps retained correlation edges per column.
	TopKEdgesPerColumn int `yaml:"top_k_edges_per_column" env:"INDEXING_TOP_K_EDGES" env-default:"5"`
	// ColumnWorkers bounds parallel per-column statistics computation.
	ColumnWorkers int `yaml:"column_workers" env:"INDEXING_COLUMN_WORKERS" env-default:"4"`
	// StageTimeoutSeconds bounds each non-essential cross-column stage.
	StageTimeoutSeconds int `yaml:"stage_timeout_seconds" env:"INDEXING_STAGE_TIMEOUT_SECONDS" env-default:"60"`
	// IndexCacheSize is the number of Ready indexes kept in the read cache.
	IndexCacheSize int `yaml:"index_cache_size" env:"INDEXING_INDEX_CACHE_SIZE" env-default:"128"`
}

// StageTimeout returns the cross-column stage timeout as a duration.
func (c *IndexingConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// A missing config.yaml is not an error; env defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.Indexing.ColumnWorkers < 1 {
		return nil, fmt.Errorf("indexing.column_workers must be at least 1")
	}
	if cfg.Tabular.QueryTimeoutSeconds < 1 {
		return nil, fmt.Errorf("tabular.query_timeout_seconds must be at least 1")
	}

	return cfg, nil
}

// Redacted returns a YAML rendering of the effective configuration with
// secrets blanked, suitable for startup logging.
func (c *Config) Redacted() string {
	clone := *c
	clone.Database.Password = ""
	out, err := yaml.Marshal(&clone)
	if err != nil {
		return ""
	}
	return string(out)
}
