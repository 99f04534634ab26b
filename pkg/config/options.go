// Functional options for smshub configuration.
package config

import (
	"time"

	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/observability"
	"github.com/kart-io/smshub/pkg/queue"
	"github.com/kart-io/smshub/pkg/webhook"
)

// WithGateway adds a configured gateway instance.
func WithGateway(cfg gateway.Config) Option {
	return func(c *Config) error {
		c.Gateways = append(c.Gateways, cfg)
		return nil
	}
}

// WithDefaultGateway sets the site-wide fallback gateway.
func WithDefaultGateway(id string) Option {
	return func(c *Config) error {
		c.DefaultGateway = id
		return nil
	}
}

// WithDefaultMaxRecipients sets the substitute batch size for drivers that
// do not declare a recipient limit.
func WithDefaultMaxRecipients(max int) Option {
	return func(c *Config) error {
		c.DefaultMaxRecipients = max
		return nil
	}
}

// WithBaseURL sets the externally reachable base URL used to derive
// delivery-report callback URLs.
func WithBaseURL(url string) Option {
	return func(c *Config) error {
		c.BaseURL = url
		return nil
	}
}

// WithTimeout sets the per-gateway-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Timeout = timeout
		return nil
	}
}

// WithMemoryQueue configures the in-memory queue backend.
func WithMemoryQueue(capacity, workers int) Option {
	return func(c *Config) error {
		c.Queue.Type = "memory"
		c.Queue.Capacity = capacity
		c.Queue.Workers = workers
		return nil
	}
}

// WithRedisQueue configures the Redis queue backend.
func WithRedisQueue(opts queue.RedisOptions, workers int) Option {
	return func(c *Config) error {
		c.Queue.Type = "redis"
		c.Queue.Redis = &opts
		c.Queue.Workers = workers
		return nil
	}
}

// WithRetryPolicy sets the queue worker retry policy.
func WithRetryPolicy(policy queue.RetryPolicy) Option {
	return func(c *Config) error {
		c.Queue.Retry = policy
		return nil
	}
}

// WithRedisStore configures Redis-backed message and report persistence.
func WithRedisStore(addr string, db int, keyPrefix string) Option {
	return func(c *Config) error {
		c.Store.Type = "redis"
		c.Store.RedisAddr = addr
		c.Store.RedisDB = db
		c.Store.KeyPrefix = keyPrefix
		return nil
	}
}

// WithWebhook configures the webhook server.
func WithWebhook(cfg webhook.Config) Option {
	return func(c *Config) error {
		c.Webhook = cfg
		return nil
	}
}

// WithTelemetry enables OpenTelemetry export.
func WithTelemetry(cfg observability.Config) Option {
	return func(c *Config) error {
		c.Telemetry = &cfg
		return nil
	}
}

// WithLogger sets the logger instance.
func WithLogger(log logger.Logger) Option {
	return func(c *Config) error {
		c.LoggerInstance = log
		return nil
	}
}
