package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/store-db/modules/catalog"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

type allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error)
}

// Middleware implements rate limiting as a mono.MiddlewareModule.
// It wraps request-reply handlers to enforce per-client, per-service limits
// and fails open whenever Redis cannot answer.
type Middleware struct {
	name    string
	config  Config
	client  *redis.Client
	limiter allower
	logger  types.Logger
}

// Compile-time interface checks
var _ mono.Module = (*Middleware)(nil)
var _ mono.MiddlewareModule = (*Middleware)(nil)

// rejection is the reply body for a rejected call. Its "error" field decodes
// into the Error field of every catalog response.
type rejection struct {
	Error     *catalog.ErrorPayload `json:"error"`
	Remaining int                   `json:"remaining"`
	ResetAt   time.Time             `json:"reset_at"`
	Limit     int                   `json:"limit"`
}

// New creates a new rate limiting middleware.
func New(logger types.Logger, opts ...Option) (*Middleware, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.DefaultLimit <= 0 || config.DefaultWindow <= 0 {
		return nil, fmt.Errorf("rate limit and window must be positive, got %d per %s",
			config.DefaultLimit, config.DefaultWindow)
	}

	return &Middleware{
		name:   "rate-limit",
		config: config,
		logger: logger,
	}, nil
}

// Name returns the middleware name.
func (m *Middleware) Name() string {
	return m.name
}

// Start connects to Redis. An unreachable Redis is logged, not fatal.
func (m *Middleware) Start(ctx context.Context) error {
	m.client = redis.NewClient(&redis.Options{
		Addr:         m.config.RedisAddr,
		Password:     m.config.RedisPassword,
		DB:           m.config.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	m.limiter = NewLimiter(m.client, m.config.KeyPrefix)

	if err := m.client.Ping(ctx).Err(); err != nil {
		m.logger.WithError(err).Warn("Redis unreachable, rate limiting fails open until it recovers",
			"redis", m.config.RedisAddr)
	}

	m.logger.Info("Rate limiting middleware started",
		"redis", m.config.RedisAddr,
		"default_limit", m.config.DefaultLimit,
		"default_window", m.config.DefaultWindow)
	return nil
}

// Stop closes the Redis connection.
func (m *Middleware) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
			return err
		}
	}
	m.logger.Info("Rate limiting middleware stopped")
	return nil
}

// OnModuleLifecycle passes through module lifecycle events unchanged.
func (m *Middleware) OnModuleLifecycle(
	_ context.Context,
	event types.ModuleLifecycleEvent,
) types.ModuleLifecycleEvent {
	return event
}

// OnServiceRegistration wraps request-reply handlers with rate limiting.
func (m *Middleware) OnServiceRegistration(
	_ context.Context,
	reg types.ServiceRegistration,
) types.ServiceRegistration {
	if reg.Type != types.ServiceTypeRequestReply || reg.RequestHandler == nil {
		return reg
	}
	if !m.config.covers(reg.Name) {
		return reg
	}

	serviceName := reg.Name
	original := reg.RequestHandler
	limit, window := m.config.limitFor(serviceName)

	m.logger.Debug("Wrapping service with rate limiting",
		"service", serviceName,
		"limit", limit,
		"window", window)

	reg.RequestHandler = func(ctx context.Context, req *types.Msg) ([]byte, error) {
		if m.limiter == nil {
			return original(ctx, req)
		}

		clientID := m.extractClientID(req)
		result, err := m.limiter.Allow(ctx, serviceName+":"+clientID, limit, window)
		if err != nil {
			m.logger.WithError(err).Warn("Rate limit check failed, allowing request",
				"service", serviceName,
				"client_id", clientID)
			return original(ctx, req)
		}
		if result.Allowed {
			return original(ctx, req)
		}

		m.logger.Warn("Rate limit exceeded",
			"service", serviceName,
			"client_id", clientID,
			"limit", result.Limit,
			"reset_at", result.ResetAt)
		return json.Marshal(rejection{
			Error: &catalog.ErrorPayload{
				Kind: catalog.KindRateLimited,
				Code: catalog.CodeRateLimited,
				Message: fmt.Sprintf("Rate limit exceeded for %s: %d calls per %s. Retry after %s.",
					serviceName, result.Limit, window, result.ResetAt.UTC().Format(time.RFC3339)),
			},
			Remaining: result.Remaining,
			ResetAt:   result.ResetAt,
			Limit:     result.Limit,
		})
	}

	return reg
}

// OnConfigurationChange passes through configuration changes unchanged.
func (m *Middleware) OnConfigurationChange(
	_ context.Context,
	event types.ConfigurationEvent,
) types.ConfigurationEvent {
	return event
}

// OnOutgoingMessage passes through outgoing messages unchanged.
func (m *Middleware) OnOutgoingMessage(
	octx types.OutgoingMessageContext,
) types.OutgoingMessageContext {
	return octx
}

// OnEventConsumerRegistration passes through event consumer registrations unchanged.
func (m *Middleware) OnEventConsumerRegistration(
	_ context.Context,
	entry types.EventConsumerEntry,
) types.EventConsumerEntry {
	return entry
}

// OnEventStreamConsumerRegistration passes through event stream consumer registrations unchanged.
func (m *Middleware) OnEventStreamConsumerRegistration(
	_ context.Context,
	entry types.EventStreamConsumerEntry,
) types.EventStreamConsumerEntry {
	return entry
}

// maxClientIDLength limits client ID length to prevent abuse.
const maxClientIDLength = 128

func (m *Middleware) extractClientID(req *types.Msg) string {
	if req == nil || req.Header == nil {
		return m.config.FallbackClientID
	}
	values, ok := req.Header[m.config.ClientIDHeader]
	if !ok || len(values) == 0 || values[0] == "" {
		return m.config.FallbackClientID
	}
	clientID := values[0]
	if len(clientID) > maxClientIDLength {
		clientID = clientID[:maxClientIDLength]
	}
	return clientID
}
