// Package config provides the configuration system for smshub.
package config

import (
	"time"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/observability"
	"github.com/kart-io/smshub/pkg/queue"
	"github.com/kart-io/smshub/pkg/webhook"
)

// QueueConfig configures the async dispatch queue.
type QueueConfig struct {
	// Type selects the backend: "memory" or "redis".
	Type     string              `json:"type" yaml:"type"`
	Capacity int                 `json:"capacity" yaml:"capacity"`
	Workers  int                 `json:"workers" yaml:"workers"`
	Retry    queue.RetryPolicy   `json:"retry" yaml:"retry"`
	Redis    *queue.RedisOptions `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// StoreConfig configures message and report persistence.
type StoreConfig struct {
	// Type selects the backend: "memory" or "redis".
	Type      string `json:"type" yaml:"type"`
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db" yaml:"redis_db"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// Config is the unified smshub configuration.
type Config struct {
	// Gateways lists configured gateway instances.
	Gateways []gateway.Config `json:"gateways" yaml:"gateways"`

	// DefaultGateway is the site-wide fallback gateway id.
	DefaultGateway string `json:"default_gateway,omitempty" yaml:"default_gateway,omitempty"`

	// DefaultMaxRecipients substitutes for drivers that do not declare a
	// recipient-per-batch limit.
	DefaultMaxRecipients int `json:"default_max_recipients" yaml:"default_max_recipients"`

	// BaseURL is the externally reachable URL delivery-report callbacks
	// are derived from.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout bounds a single gateway call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	Queue     QueueConfig           `json:"queue" yaml:"queue"`
	Store     StoreConfig           `json:"store" yaml:"store"`
	Webhook   webhook.Config        `json:"webhook" yaml:"webhook"`
	Telemetry *observability.Config `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`

	// LoggerInstance is the logger smshub components share.
	LoggerInstance logger.Logger `json:"-" yaml:"-"`
}

// Option defines a functional option for configuration.
type Option func(*Config) error

// New creates a new configuration with the given options applied on top of
// defaults.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{
		DefaultMaxRecipients: gateway.DefaultMaxRecipients,
		Timeout:              30 * time.Second,
		Queue: QueueConfig{
			Type:     "memory",
			Capacity: 1024,
			Workers:  4,
			Retry:    queue.DefaultRetryPolicy(),
		},
		Store: StoreConfig{
			Type: "memory",
		},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger returns the configured logger, falling back to the standard one.
func (c *Config) Logger() logger.Logger {
	if c.LoggerInstance != nil {
		return c.LoggerInstance
	}
	return logger.New()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}

	switch c.Queue.Type {
	case "", "memory":
		c.Queue.Type = "memory"
	case "redis":
		if c.Queue.Redis == nil || c.Queue.Redis.Addr == "" {
			return errors.New(errors.ErrInvalidConfig, "redis queue requires an address")
		}
	default:
		return errors.Newf(errors.ErrInvalidConfig, "unknown queue type %q", c.Queue.Type)
	}

	switch c.Store.Type {
	case "", "memory":
		c.Store.Type = "memory"
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New(errors.ErrInvalidConfig, "redis store requires an address")
		}
	default:
		return errors.Newf(errors.ErrInvalidConfig, "unknown store type %q", c.Store.Type)
	}

	ids := make(map[string]bool, len(c.Gateways))
	for _, gw := range c.Gateways {
		if gw.ID == "" || gw.Plugin == "" {
			return errors.New(errors.ErrInvalidConfig, "every gateway needs an id and a plugin")
		}
		if ids[gw.ID] {
			return errors.Newf(errors.ErrInvalidConfig, "duplicate gateway id %q", gw.ID)
		}
		ids[gw.ID] = true
	}

	if c.DefaultGateway != "" && !ids[c.DefaultGateway] {
		return errors.Newf(errors.ErrInvalidConfig, "default gateway %q is not configured", c.DefaultGateway)
	}
	return nil
}
