// Package config loads store-db settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/store-db/middleware/ratelimit"
	"github.com/example/store-db/modules/database"
	"github.com/example/store-db/telemetry"
	"gopkg.in/yaml.v3"
)

// MCP transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
	TransportOff   = "off"
)

// Config is the full process configuration.
type Config struct {
	Database        Database      `yaml:"database"`
	HTTP            HTTP          `yaml:"http"`
	MCP             MCP           `yaml:"mcp"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
	Tracing         Tracing       `yaml:"tracing"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// Database mirrors database.Config for file and environment loading.
type Database struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"`

	PoolSize            int           `yaml:"pool_size"`
	MaxOverflow         int           `yaml:"max_overflow"`
	PoolTimeout         time.Duration `yaml:"pool_timeout"`
	PoolRecycle         time.Duration `yaml:"pool_recycle"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
	MaxRetryAttempts    int           `yaml:"max_retry_attempts"`
	MinRetryInterval    time.Duration `yaml:"min_retry_interval"`
	AutoMigrate         bool          `yaml:"auto_migrate"`
	Debug               bool          `yaml:"debug"`
}

// HTTP configures the REST surface.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// MCP configures the agent tool surface.
type MCP struct {
	Addr      string `yaml:"addr"`
	Transport string `yaml:"transport"`
}

// RateLimit configures the Redis rate limiting middleware. An empty
// RedisAddr disables it.
type RateLimit struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in defaults.
func Default() Config {
	db := database.DefaultConfig()
	return Config{
		Database: Database{
			Driver:              db.Driver,
			Host:                db.Host,
			Port:                db.Port,
			User:                db.User,
			Password:            db.Password,
			Name:                db.Name,
			SSLMode:             db.SSLMode,
			Path:                db.Path,
			PoolSize:            db.PoolSize,
			MaxOverflow:         db.MaxOverflow,
			PoolTimeout:         db.PoolTimeout,
			PoolRecycle:         db.PoolRecycle,
			ConnectTimeout:      db.ConnectTimeout,
			HealthCheckInterval: db.HealthCheckInterval,
			HealthCheckTimeout:  db.HealthCheckTimeout,
			MaxRetryAttempts:    db.MaxRetryAttempts,
			MinRetryInterval:    db.MinRetryInterval,
			AutoMigrate:         db.AutoMigrate,
			Debug:               db.Debug,
		},
		HTTP: HTTP{Addr: ":8080"},
		MCP:  MCP{Addr: ":8002", Transport: TransportHTTP},
		RateLimit: RateLimit{
			Limit:  120,
			Window: time.Minute,
		},
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

// Load builds the configuration. path may be empty; a missing file is an
// error only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	d := &c.Database
	d.Driver = getEnv("DATABASE_DRIVER", d.Driver)
	d.URL = getEnv("DATABASE_URL", d.URL)
	d.Host = getEnv("DATABASE_HOST", d.Host)
	d.Port = getEnvInt("DATABASE_PORT", d.Port)
	d.User = getEnv("DATABASE_USER", d.User)
	d.Password = getEnv("DATABASE_PASSWORD", d.Password)
	d.Name = getEnv("DATABASE_NAME", d.Name)
	d.SSLMode = getEnv("DATABASE_SSL_MODE", d.SSLMode)
	d.Path = getEnv("DB_PATH", d.Path)
	d.PoolSize = getEnvInt("DB_POOL_SIZE", d.PoolSize)
	d.MaxOverflow = getEnvInt("DB_MAX_OVERFLOW", d.MaxOverflow)
	d.PoolTimeout = getEnvDuration("DB_POOL_TIMEOUT", d.PoolTimeout)
	d.PoolRecycle = getEnvDuration("DB_POOL_RECYCLE", d.PoolRecycle)
	d.ConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", d.ConnectTimeout)
	d.HealthCheckInterval = getEnvDuration("DB_HEALTH_CHECK_INTERVAL", d.HealthCheckInterval)
	d.HealthCheckTimeout = getEnvDuration("DB_HEALTH_CHECK_TIMEOUT", d.HealthCheckTimeout)
	d.MaxRetryAttempts = getEnvInt("DB_MAX_RETRY_ATTEMPTS", d.MaxRetryAttempts)
	d.MinRetryInterval = getEnvDuration("DB_MIN_RETRY_INTERVAL", d.MinRetryInterval)
	d.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", d.AutoMigrate)
	d.Debug = getEnvBool("DB_DEBUG", d.Debug)

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.MCP.Addr = getEnv("MCP_ADDR", c.MCP.Addr)
	c.MCP.Transport = strings.ToLower(getEnv("MCP_TRANSPORT", c.MCP.Transport))

	r := &c.RateLimit
	r.RedisAddr = getEnv("REDIS_ADDR", r.RedisAddr)
	r.RedisPassword = getEnv("REDIS_PASSWORD", r.RedisPassword)
	r.RedisDB = getEnvInt("REDIS_DB", r.RedisDB)
	r.Limit = getEnvInt("RATE_LIMIT", r.Limit)
	r.Window = getEnvDuration("RATE_LIMIT_WINDOW", r.Window)

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	var errs []error
	if err := c.DatabaseConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.MCP.Transport {
	case TransportHTTP, TransportStdio, TransportOff:
	default:
		errs = append(errs, fmt.Errorf("unsupported MCP transport %q", c.MCP.Transport))
	}
	if c.RateLimitEnabled() && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, fmt.Errorf("rate limit must be positive, got %d per %s", c.RateLimit.Limit, c.RateLimit.Window))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// DatabaseConfig converts the database section.
func (c Config) DatabaseConfig() database.Config {
	d := c.Database
	cfg := database.DefaultConfig()
	cfg.Driver = d.Driver
	cfg.URL = d.URL
	cfg.Host = d.Host
	cfg.Port = d.Port
	cfg.User = d.User
	cfg.Password = d.Password
	cfg.Name = d.Name
	cfg.SSLMode = d.SSLMode
	cfg.Path = d.Path
	cfg.PoolSize = d.PoolSize
	cfg.MaxOverflow = d.MaxOverflow
	cfg.PoolTimeout = d.PoolTimeout
	cfg.PoolRecycle = d.PoolRecycle
	cfg.ConnectTimeout = d.ConnectTimeout
	cfg.HealthCheckInterval = d.HealthCheckInterval
	cfg.HealthCheckTimeout = d.HealthCheckTimeout
	cfg.MaxRetryAttempts = d.MaxRetryAttempts
	cfg.MinRetryInterval = d.MinRetryInterval
	cfg.AutoMigrate = d.AutoMigrate
	cfg.Debug = d.Debug
	return cfg
}

// RateLimitEnabled reports whether a Redis address was configured.
func (c Config) RateLimitEnabled() bool {
	return c.RateLimit.RedisAddr != ""
}

// RateLimitOptions returns middleware options limiting services.
func (c Config) RateLimitOptions(services ...string) []ratelimit.Option {
	r := c.RateLimit
	return []ratelimit.Option{
		ratelimit.WithRedis(r.RedisAddr, r.RedisPassword, r.RedisDB),
		ratelimit.WithDefaultLimit(r.Limit, r.Window),
		ratelimit.WithServices(services...),
	}
}

// TelemetryConfig converts the tracing section.
func (c Config) TelemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = c.Tracing.Enabled
	return cfg
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
// Bare integers are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	return defaultValue
}
