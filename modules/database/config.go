package database

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection configuration.
type Config struct {
	// Driver selects the storage engine: "postgres" or "sqlite".
	Driver string

	// URL, when set, is used verbatim as the DSN.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// Path is the SQLite database file, or ":memory:".
	Path string

	// PoolSize is the number of connections kept idle in the pool.
	PoolSize int
	// MaxOverflow is the number of extra connections allowed above PoolSize.
	MaxOverflow int
	// PoolTimeout bounds how long an idle connection is kept.
	PoolTimeout time.Duration
	// PoolRecycle is the maximum lifetime of a pooled connection.
	PoolRecycle time.Duration

	// ConnectTimeout bounds one full connect plus schema check attempt.
	ConnectTimeout time.Duration
	// HealthCheckTimeout bounds a single liveness ping.
	HealthCheckTimeout time.Duration
	// HealthCheckInterval is the background monitor period; zero disables the monitor.
	HealthCheckInterval time.Duration
	// MaxRetryAttempts bounds reconnection attempts per monitor round.
	MaxRetryAttempts int
	// MinRetryInterval suppresses lazy reconnection attempts that follow a
	// failed attempt too closely.
	MinRetryInterval time.Duration

	// PingOnAcquire verifies the connection before handing out a session.
	PingOnAcquire bool
	// AutoMigrate applies missing tables and columns during the schema check.
	AutoMigrate bool
	// Debug enables gorm SQL logging.
	Debug bool
}

// DefaultConfig returns a config with the service defaults.
func DefaultConfig() Config {
	return Config{
		Driver:              DriverPostgres,
		Host:                "localhost",
		Port:                5432,
		User:                "postgres",
		Password:            "",
		Name:                "store_db",
		SSLMode:             "disable",
		Path:                "store.db",
		PoolSize:            10,
		MaxOverflow:         20,
		PoolTimeout:         30 * time.Second,
		PoolRecycle:         time.Hour,
		ConnectTimeout:      10 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		MaxRetryAttempts:    5,
		MinRetryInterval:    2 * time.Second,
		PingOnAcquire:       true,
		AutoMigrate:         true,
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithDriver sets the storage driver.
func WithDriver(driver string) Option {
	return func(c *Config) {
		c.Driver = driver
	}
}

// WithURL sets an explicit DSN.
func WithURL(dsn string) Option {
	return func(c *Config) {
		c.URL = dsn
	}
}

// WithSQLitePath selects the SQLite driver with the given file.
func WithSQLitePath(path string) Option {
	return func(c *Config) {
		c.Driver = DriverSQLite
		c.Path = path
	}
}

// WithAutoMigrate toggles automatic schema migration.
func WithAutoMigrate(enabled bool) Option {
	return func(c *Config) {
		c.AutoMigrate = enabled
	}
}

// WithMinRetryInterval sets the lazy reconnection guard.
func WithMinRetryInterval(d time.Duration) Option {
	return func(c *Config) {
		c.MinRetryInterval = d
	}
}

// WithHealthCheckInterval sets the background monitor period.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(c *Config) {
		c.HealthCheckInterval = d
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.Driver == DriverSQLite && c.URL == "" && c.Path == "" {
		return fmt.Errorf("sqlite driver requires a path")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.MaxOverflow < 0 {
		return fmt.Errorf("max overflow must be non-negative, got %d", c.MaxOverflow)
	}
	if c.ConnectTimeout <= 0 || c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("connect and health check timeouts must be positive")
	}
	if c.MaxRetryAttempts <= 0 {
		return fmt.Errorf("max retry attempts must be positive, got %d", c.MaxRetryAttempts)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Driver == DriverSQLite {
		return sqliteDSN(c.Path)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// SafeURL returns the DSN with any password masked.
func (c Config) SafeURL() string {
	dsn := c.DSN()
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// inMemory reports whether the configuration targets a private in-memory SQLite database.
func (c Config) inMemory() bool {
	return c.Driver == DriverSQLite && c.URL == "" && (c.Path == ":memory:" || c.Path == "")
}
