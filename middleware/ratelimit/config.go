package ratelimit

import (
	"time"
)

// Config holds rate limiter configuration.
type Config struct {
	// RedisAddr is the Redis server address (e.g., "localhost:6379")
	RedisAddr string

	// RedisPassword is the Redis authentication password (optional)
	RedisPassword string

	// RedisDB is the Redis database number (default: 0)
	RedisDB int

	// DefaultLimit is the number of calls a client may make per window
	DefaultLimit int

	// DefaultWindow is the fixed window length
	DefaultWindow time.Duration

	// ServiceLimits overrides the default for individual services
	ServiceLimits map[string]ServiceLimit

	// Services restricts limiting to these service names; empty means every
	// request-reply service.
	Services []string

	// KeyPrefix is the prefix for Redis keys (default: "ratelimit:")
	KeyPrefix string

	// ClientIDHeader is the header carrying the caller identity (default: "X-Agent-ID")
	ClientIDHeader string

	// FallbackClientID is used when no client ID is found in request
	FallbackClientID string
}

// ServiceLimit defines rate limits for a specific service.
type ServiceLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig returns a config with the service defaults.
func DefaultConfig() Config {
	return Config{
		RedisAddr:        "localhost:6379",
		DefaultLimit:     120,
		DefaultWindow:    time.Minute,
		ServiceLimits:    make(map[string]ServiceLimit),
		KeyPrefix:        "ratelimit:",
		ClientIDHeader:   "X-Agent-ID",
		FallbackClientID: "anonymous",
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithRedis sets the Redis connection parameters.
func WithRedis(addr, password string, db int) Option {
	return func(c *Config) {
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
	}
}

// WithDefaultLimit sets the default rate limit.
func WithDefaultLimit(limit int, window time.Duration) Option {
	return func(c *Config) {
		c.DefaultLimit = limit
		c.DefaultWindow = window
	}
}

// WithServiceLimit sets a specific rate limit for a service.
func WithServiceLimit(serviceName string, limit int, window time.Duration) Option {
	return func(c *Config) {
		c.ServiceLimits[serviceName] = ServiceLimit{
			Limit:  limit,
			Window: window,
		}
	}
}

// WithServices restricts limiting to the named services.
func WithServices(names ...string) Option {
	return func(c *Config) {
		c.Services = append(c.Services, names...)
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithClientIDHeader sets the header name for client ID extraction.
func WithClientIDHeader(header string) Option {
	return func(c *Config) {
		c.ClientIDHeader = header
	}
}

func (c Config) limitFor(service string) (int, time.Duration) {
	if l, ok := c.ServiceLimits[service]; ok {
		return l.Limit, l.Window
	}
	return c.DefaultLimit, c.DefaultWindow
}

func (c Config) covers(service string) bool {
	if len(c.Services) == 0 {
		return true
	}
	for _, name := range c.Services {
		if name == service {
			return true
		}
	}
	return false
}
