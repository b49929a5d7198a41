package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents the dispenser service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	SQLite      SQLiteConfig      `mapstructure:"sqlite"`
	Quota       QuotaConfig       `mapstructure:"quota"`
	Items       ItemsConfig       `mapstructure:"items"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents Redis configuration, used by the redis backend and
// the redis idempotency store
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SQLiteConfig represents embedded database configuration
type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// QuotaConfig represents tier allowances and the reset cadence
type QuotaConfig struct {
	Tiers            map[string]int `mapstructure:"tiers"`
	ReportThreshold  int            `mapstructure:"report_threshold"`
	ResetPeriod      time.Duration  `mapstructure:"reset_period"`
	ResetConcurrency int            `mapstructure:"reset_concurrency"`
}

// ItemsConfig represents item pool configuration
type ItemsConfig struct {
	MaxPayloadLength int    `mapstructure:"max_payload_length"`
	SeedFile         string `mapstructure:"seed_file"`
}

// AuthConfig represents tenant auth config caching. The cache is per
// process, so other instances sharing a backend see a new admin role only
// after CacheTTL.
type AuthConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheMaxSize int           `mapstructure:"cache_max_size"`
}

// IdempotencyConfig represents replay protection for distribution
type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RateLimiterConfig represents HTTP rate limiting
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig represents the health endpoint server
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.Database == "" {
			return errors.New("database.database is required")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required")
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return errors.New("redis.host is required")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: memory, sqlite, postgres, redis (got %q)", c.Storage.Backend)
	}

	if len(c.Quota.Tiers) == 0 {
		return errors.New("quota.tiers must define at least one tier")
	}
	for label, allowance := range c.Quota.Tiers {
		if allowance < 0 {
			return fmt.Errorf("quota.tiers[%q] must not be negative", label)
		}
	}
	if c.Quota.ReportThreshold == 0 {
		c.Quota.ReportThreshold = model.ReportThreshold
	}
	if c.Quota.ReportThreshold != model.ReportThreshold {
		return fmt.Errorf("quota.report_threshold is fixed at %d", model.ReportThreshold)
	}
	if c.Quota.ResetPeriod <= 0 {
		return errors.New("quota.reset_period must be positive")
	}
	if c.Quota.ResetConcurrency <= 0 {
		c.Quota.ResetConcurrency = 4
	}

	if c.Items.MaxPayloadLength <= 0 {
		return errors.New("items.max_payload_length must be positive")
	}

	if c.Idempotency.Enabled {
		if c.Idempotency.TTL <= 0 {
			return errors.New("idempotency.ttl must be positive")
		}
		switch c.Idempotency.Backend {
		case "", BackendMemory:
			c.Idempotency.Backend = BackendMemory
		case BackendRedis:
			if c.Redis.Host == "" {
				return errors.New("redis.host is required for the redis idempotency backend")
			}
		default:
			return errors.New("idempotency.backend must be one of: memory, redis")
		}
	}

	if c.RateLimiter.Enabled && (c.RateLimiter.RequestsPerSecond <= 0 || c.RateLimiter.BurstSize <= 0) {
		return errors.New("rate_limiter.requests_per_second and rate_limiter.burst_size must be positive")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultTiers mirrors the role table the dispenser shipped with
func DefaultTiers() map[string]int {
	return map[string]int{
		"link access": 3,
		"level 10":    4,
		"level 25":    5,
		"level 50":    6,
	}
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "dispenser",
			User:           "dispenser",
			MaxConnections: 20,
			MinConnections: 2,
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  50,
			KeyPrefix: "dispenser:",
		},
		SQLite: SQLiteConfig{
			Path:        "dispenser.db",
			BusyTimeout: 5 * time.Second,
		},
		Quota: QuotaConfig{
			Tiers:            DefaultTiers(),
			ReportThreshold:  model.ReportThreshold,
			ResetPeriod:      7 * 24 * time.Hour,
			ResetConcurrency: 4,
		},
		Items: ItemsConfig{
			MaxPayloadLength: 2048,
		},
		Auth: AuthConfig{
			CacheTTL:     10 * time.Second,
			CacheMaxSize: 10000,
		},
		Idempotency: IdempotencyConfig{
			Enabled: true,
			Backend: BackendMemory,
			TTL:     10 * time.Minute,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Port: 8081,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
