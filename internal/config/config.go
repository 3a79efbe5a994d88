// Package config loads catalogd configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all configuration for catalogd.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Training TrainingConfig `yaml:"training"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig selects the listing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// SnapshotConfig locates the generation snapshot. An empty path disables it.
type SnapshotConfig struct {
	Path string `yaml:"path"`
}

// TrainingConfig locates the brand tables. An empty path uses the built-in
// tables.
type TrainingConfig struct {
	BrandTables string `yaml:"brand_tables"`
	Watch       bool   `yaml:"watch"`
}

// CacheConfig holds query result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, redis or none
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SearchConfig configures the meilisearch mirror. An empty URL disables it.
type SearchConfig struct {
	MeiliURL    string `yaml:"meili_url"`
	MeiliAPIKey string `yaml:"meili_api_key"`
	Index       string `yaml:"index"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env if present, then the YAML file at path (when given), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8000",
			RequestTimeout:   30 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "catalog.db",
		},
		Snapshot: SnapshotConfig{
			Path: "catalog.snapshot",
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Search: SearchConfig{
			Index: "groups",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server addr is empty", ErrInvalid)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("%w: database driver %q", ErrInvalid, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database dsn is empty", ErrInvalid)
	}
	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: redis addr is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: cache driver %q", ErrInvalid, c.Cache.Driver)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache ttl is negative", ErrInvalid)
	}
	if c.Training.Watch && c.Training.BrandTables == "" {
		return fmt.Errorf("%w: training watch needs brand_tables", ErrInvalid)
	}
	if c.Search.MeiliURL != "" && c.Search.Index == "" {
		return fmt.Errorf("%w: search index is empty", ErrInvalid)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CATALOG_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv("SNAPSHOT_PATH"); ok {
		cfg.Snapshot.Path = v
	}
	if v := os.Getenv("BRAND_TABLES"); v != "" {
		cfg.Training.BrandTables = v
	}
	if v := os.Getenv("BRAND_TABLES_WATCH"); v != "" {
		if watch, err := strconv.ParseBool(v); err == nil {
			cfg.Training.Watch = watch
		}
	}
	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("MEILI_URL"); v != "" {
		cfg.Search.MeiliURL = v
	}
	if v := os.Getenv("MEILI_API_KEY"); v != "" {
		cfg.Search.MeiliAPIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
