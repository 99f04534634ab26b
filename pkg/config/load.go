package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/observability"
	"github.com/kart-io/smshub/pkg/queue"
)

// fileConfig mirrors Config for YAML decoding. Durations are strings in the
// file ("10s", "1h") and parsed with time.ParseDuration; retention also
// accepts "forever".
type fileConfig struct {
	Gateways             []fileGateway         `yaml:"gateways"`
	DefaultGateway       string                `yaml:"default_gateway"`
	DefaultMaxRecipients int                   `yaml:"default_max_recipients"`
	BaseURL              string                `yaml:"base_url"`
	Timeout              string                `yaml:"timeout"`
	Queue                fileQueue             `yaml:"queue"`
	Store                StoreConfig           `yaml:"store"`
	Webhook              fileWebhook           `yaml:"webhook"`
	Telemetry            *observability.Config `yaml:"telemetry"`
}

type fileGateway struct {
	ID        string                 `yaml:"id"`
	Plugin    string                 `yaml:"plugin"`
	Settings  map[string]interface{} `yaml:"settings"`
	Retention struct {
		Outgoing string `yaml:"outgoing"`
		Incoming string `yaml:"incoming"`
	} `yaml:"retention"`
}

type fileQueue struct {
	Type     string `yaml:"type"`
	Capacity int    `yaml:"capacity"`
	Workers  int    `yaml:"workers"`
	Retry    struct {
		MaxRetries      int     `yaml:"max_retries"`
		InitialInterval string  `yaml:"initial_interval"`
		MaxInterval     string  `yaml:"max_interval"`
		Multiplier      float64 `yaml:"multiplier"`
	} `yaml:"retry"`
	Redis *struct {
		Addr         string `yaml:"addr"`
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		DialTimeout  string `yaml:"dial_timeout"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		PoolSize     int    `yaml:"pool_size"`
		KeyPrefix    string `yaml:"key_prefix"`
	} `yaml:"redis"`
}

type fileWebhook struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrInvalidConfig, "invalid duration for %s", field)
	}
	return d, nil
}

func parseRetention(s, field string) (time.Duration, error) {
	if s == "forever" {
		return gateway.RetentionForever, nil
	}
	return parseDuration(s, field)
}

// apply converts the parsed file onto a Config.
func (f *fileConfig) apply(c *Config) error {
	for _, fg := range f.Gateways {
		gc := gateway.Config{
			ID:       fg.ID,
			Plugin:   fg.Plugin,
			Settings: fg.Settings,
		}
		var err error
		if gc.Retention.Outgoing, err = parseRetention(fg.Retention.Outgoing, "retention.outgoing"); err != nil {
			return err
		}
		if gc.Retention.Incoming, err = parseRetention(fg.Retention.Incoming, "retention.incoming"); err != nil {
			return err
		}
		c.Gateways = append(c.Gateways, gc)
	}

	if f.DefaultGateway != "" {
		c.DefaultGateway = f.DefaultGateway
	}
	if f.DefaultMaxRecipients != 0 {
		c.DefaultMaxRecipients = f.DefaultMaxRecipients
	}
	if f.BaseURL != "" {
		c.BaseURL = f.BaseURL
	}
	if d, err := parseDuration(f.Timeout, "timeout"); err != nil {
		return err
	} else if d != 0 {
		c.Timeout = d
	}

	if f.Queue.Type != "" {
		c.Queue.Type = f.Queue.Type
	}
	if f.Queue.Capacity != 0 {
		c.Queue.Capacity = f.Queue.Capacity
	}
	if f.Queue.Workers != 0 {
		c.Queue.Workers = f.Queue.Workers
	}
	if f.Queue.Retry.MaxRetries != 0 {
		c.Queue.Retry.MaxRetries = f.Queue.Retry.MaxRetries
	}
	if f.Queue.Retry.Multiplier != 0 {
		c.Queue.Retry.Multiplier = f.Queue.Retry.Multiplier
	}
	if d, err := parseDuration(f.Queue.Retry.InitialInterval, "queue.retry.initial_interval"); err != nil {
		return err
	} else if d != 0 {
		c.Queue.Retry.InitialInterval = d
	}
	if d, err := parseDuration(f.Queue.Retry.MaxInterval, "queue.retry.max_interval"); err != nil {
		return err
	} else if d != 0 {
		c.Queue.Retry.MaxInterval = d
	}

	if f.Queue.Redis != nil {
		opts := &queue.RedisOptions{
			Addr:      f.Queue.Redis.Addr,
			Password:  f.Queue.Redis.Password,
			DB:        f.Queue.Redis.DB,
			PoolSize:  f.Queue.Redis.PoolSize,
			KeyPrefix: f.Queue.Redis.KeyPrefix,
		}
		var err error
		if opts.DialTimeout, err = parseDuration(f.Queue.Redis.DialTimeout, "queue.redis.dial_timeout"); err != nil {
			return err
		}
		if opts.ReadTimeout, err = parseDuration(f.Queue.Redis.ReadTimeout, "queue.redis.read_timeout"); err != nil {
			return err
		}
		if opts.WriteTimeout, err = parseDuration(f.Queue.Redis.WriteTimeout, "queue.redis.write_timeout"); err != nil {
			return err
		}
		c.Queue.Redis = opts
	}

	if f.Store.Type != "" {
		c.Store = f.Store
	}

	if f.Webhook.Addr != "" {
		c.Webhook.Addr = f.Webhook.Addr
	}
	if f.Webhook.MaxBodyBytes != 0 {
		c.Webhook.MaxBodyBytes = f.Webhook.MaxBodyBytes
	}
	if d, err := parseDuration(f.Webhook.ReadTimeout, "webhook.read_timeout"); err != nil {
		return err
	} else if d != 0 {
		c.Webhook.ReadTimeout = d
	}
	if d, err := parseDuration(f.Webhook.WriteTimeout, "webhook.write_timeout"); err != nil {
		return err
	} else if d != 0 {
		c.Webhook.WriteTimeout = d
	}

	if f.Telemetry != nil {
		c.Telemetry = f.Telemetry
	}
	return nil
}

// LoadFile reads a YAML configuration file and applies any extra options on
// top of it.
func LoadFile(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidConfig, "failed to read config file %s", path)
	}

	fileOpt := func(c *Config) error {
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return errors.Wrapf(err, errors.ErrInvalidConfig, "failed to parse config file %s", path)
		}
		return fc.apply(c)
	}

	return New(append([]Option{fileOpt}, opts...)...)
}

// Environment variable names recognized by FromEnv.
const (
	EnvDefaultGateway = "SMSHUB_DEFAULT_GATEWAY"
	EnvBaseURL        = "SMSHUB_BASE_URL"
	EnvTimeout        = "SMSHUB_TIMEOUT"
	EnvQueueType      = "SMSHUB_QUEUE_TYPE"
	EnvQueueWorkers   = "SMSHUB_QUEUE_WORKERS"
	EnvRedisAddr      = "SMSHUB_REDIS_ADDR"
	EnvRedisPassword  = "SMSHUB_REDIS_PASSWORD"
	EnvRedisDB        = "SMSHUB_REDIS_DB"
	EnvStoreType      = "SMSHUB_STORE_TYPE"
	EnvWebhookAddr    = "SMSHUB_WEBHOOK_ADDR"
)

// FromEnv returns an option applying settings from the environment. Files
// listed in dotenvFiles are loaded first when present; a missing file is not
// an error so production deployments can skip .env entirely.
func FromEnv(dotenvFiles ...string) Option {
	return func(c *Config) error {
		for _, file := range dotenvFiles {
			if _, err := os.Stat(file); err == nil {
				if err := godotenv.Load(file); err != nil {
					return errors.Wrapf(err, errors.ErrInvalidConfig, "failed to load env file %s", file)
				}
			}
		}

		if v := os.Getenv(EnvDefaultGateway); v != "" {
			c.DefaultGateway = v
		}
		if v := os.Getenv(EnvBaseURL); v != "" {
			c.BaseURL = v
		}
		if v := os.Getenv(EnvTimeout); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, errors.ErrInvalidConfig, "invalid %s", EnvTimeout)
			}
			c.Timeout = d
		}
		if v := os.Getenv(EnvQueueType); v != "" {
			c.Queue.Type = v
		}
		if v := os.Getenv(EnvQueueWorkers); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(err, errors.ErrInvalidConfig, "invalid %s", EnvQueueWorkers)
			}
			c.Queue.Workers = n
		}
		if v := os.Getenv(EnvStoreType); v != "" {
			c.Store.Type = v
		}
		if v := os.Getenv(EnvWebhookAddr); v != "" {
			c.Webhook.Addr = v
		}

		if addr := os.Getenv(EnvRedisAddr); addr != "" {
			db := 0
			if v := os.Getenv(EnvRedisDB); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return errors.Wrapf(err, errors.ErrInvalidConfig, "invalid %s", EnvRedisDB)
				}
				db = n
			}
			if c.Queue.Type == "redis" {
				if c.Queue.Redis == nil {
					c.Queue.Redis = &queue.RedisOptions{}
				}
				c.Queue.Redis.Addr = addr
				c.Queue.Redis.Password = os.Getenv(EnvRedisPassword)
				c.Queue.Redis.DB = db
			}
			if c.Store.Type == "redis" {
				c.Store.RedisAddr = addr
				c.Store.RedisDB = db
			}
		}
		return nil
	}
}
