package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for opd-explorer.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens, session keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8501"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// ExplorerURL is the public address used when building deep links.
	// Defaults to BaseURL.
	ExplorerURL string `yaml:"explorer_url" env:"EXPLORER_URL" env-default:""`

	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Socrata   SocrataConfig   `yaml:"socrata"`

	// SQLSources names the database connections SQL datasets refer to
	// through their URL column.
	SQLSources map[string]SQLSourceConfig `yaml:"sql_sources"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	// File enables a rotating JSON log file in addition to the console.
	File       string `yaml:"file" env:"LOG_FILE" env-default:""`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

// Catalog source kinds.
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// CatalogConfig says where the dataset catalog comes from.
type CatalogConfig struct {
	// Source is "file" (CSV or YAML, local path or URL) or "postgres".
	Source   string `yaml:"source" env:"CATALOG_SOURCE" env-default:"file"`
	Location string `yaml:"location" env:"CATALOG_LOCATION" env-default:"https://raw.githubusercontent.com/openpolicedata/opd-data/main/opd_source_table.csv"`
	// LibraryVersion drops rows whose min_version is newer. Empty keeps them.
	LibraryVersion string        `yaml:"library_version" env:"CATALOG_LIBRARY_VERSION" env-default:""`
	RefreshTTL     time.Duration `yaml:"refresh_ttl" env:"CATALOG_REFRESH_TTL" env-default:"24h"`
}

// RetrievalConfig tunes the retrieval pipeline and remote loaders.
type RetrievalConfig struct {
	BatchSize   int           `yaml:"batch_size" env:"RETRIEVAL_BATCH_SIZE" env-default:"5000"`
	PreviewRows int           `yaml:"preview_rows" env:"RETRIEVAL_PREVIEW_ROWS" env-default:"20"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"RETRIEVAL_HTTP_TIMEOUT" env-default:"60s"`
	// MaxDownloadMB caps raw file downloads.
	MaxDownloadMB int64 `yaml:"max_download_mb" env:"RETRIEVAL_MAX_DOWNLOAD_MB" env-default:"1024"`
}

// Lookup cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// CacheConfig controls memoization of year and agency lookups.
type CacheConfig struct {
	Backend string        `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	TTL     time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"1h"`
}

// RedisConfig holds Redis connection settings for the redis cache backend.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// DatabaseConfig holds PostgreSQL settings for the postgres catalog source.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"opd"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"opd_explorer"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// SessionConfig controls the browser session cookie.
type SessionConfig struct {
	// Secret signs the cookie. A random key is generated when empty, which
	// invalidates sessions on restart.
	Secret     string        `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	CookieName string        `yaml:"cookie_name" env:"SESSION_COOKIE_NAME" env-default:"opd_session"`
	TTL        time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"2h"`
}

// SocrataConfig holds the optional Socrata app token.
type SocrataConfig struct {
	AppToken string `yaml:"-" env:"SOCRATA_APP_TOKEN"` // Secret - not in YAML
}

// SQL source drivers.
const (
	SQLDriverPostgres  = "postgres"
	SQLDriverSQLServer = "sqlserver"
)

// SQLSourceConfig describes one named database connection.
type SQLSourceConfig struct {
	Driver string `yaml:"driver"`
	// DSNEnv names the environment variable holding the connection string.
	DSNEnv string `yaml:"dsn_env"`
}

// DSN reads the connection string from the environment.
func (s SQLSourceConfig) DSN() string {
	return os.Getenv(s.DSNEnv)
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from path. A missing file is not an error:
// defaults and environment variables are used instead.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}
	if cfg.ExplorerURL == "" {
		cfg.ExplorerURL = cfg.BaseURL
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Catalog.Source {
	case CatalogSourceFile:
		if c.Catalog.Location == "" {
			return fmt.Errorf("catalog.location is required for the file catalog source")
		}
	case CatalogSourcePostgres:
	default:
		return fmt.Errorf("unknown catalog source %q", c.Catalog.Source)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Retrieval.BatchSize <= 0 {
		return fmt.Errorf("retrieval.batch_size must be positive")
	}
	if c.Retrieval.PreviewRows <= 0 {
		return fmt.Errorf("retrieval.preview_rows must be positive")
	}

	for name, src := range c.SQLSources {
		if src.Driver != SQLDriverPostgres && src.Driver != SQLDriverSQLServer {
			return fmt.Errorf("sql source %q: unknown driver %q", name, src.Driver)
		}
		if src.DSNEnv == "" {
			return fmt.Errorf("sql source %q: dsn_env is required", name)
		}
	}
	return nil
}

// IsDevelopment reports whether the server runs locally.
func (c *Config) IsDevelopment() bool {
	return c.Env == "local" || c.Env == "dev"
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		resolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", resolveHostForDocker(c.Host), c.Port)
}

// resolveHostForDocker maps localhost to host.docker.internal when running
// inside a container so services on the host stay reachable.
func resolveHostForDocker(host string) string {
	if host != "localhost" && host != "127.0.0.1" {
		return host
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return host
}
