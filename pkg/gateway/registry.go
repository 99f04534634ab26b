package gateway

import (
	"context"
	"sync"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/logger"
)

// DefaultMaxRecipients is the batch size substituted when a driver does not
// declare MaxOutgoingRecipients. Deliberately conservative.
const DefaultMaxRecipients = 50

// Registry holds registered driver plugins and configured gateway instances.
// Instances are created lazily from their factory on first lookup.
//
// The registry is populated at configuration-load time and is effectively
// read-only during message processing, so lookups are cheap under RWMutex.
type Registry struct {
	factories            map[string]Factory
	configs              map[string]*Config
	instances            map[string]Gateway
	defaultID            string
	defaultMaxRecipients int
	logger               logger.Logger
	mu                   sync.RWMutex
}

// NewRegistry creates a new gateway registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard
	}
	return &Registry{
		factories:            make(map[string]Factory),
		configs:              make(map[string]*Config),
		instances:            make(map[string]Gateway),
		defaultMaxRecipients: DefaultMaxRecipients,
		logger:               log,
	}
}

// RegisterPlugin registers a driver factory under a plugin id.
func (r *Registry) RegisterPlugin(pluginID string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[pluginID]; exists {
		return errors.Newf(errors.ErrAlreadyRegistered, "plugin %s already registered", pluginID)
	}
	r.factories[pluginID] = factory
	r.logger.Info("Gateway plugin registered", "plugin", pluginID)
	return nil
}

// AddGateway adds a configured gateway instance definition.
func (r *Registry) AddGateway(cfg *Config) error {
	if cfg == nil || cfg.ID == "" {
		return errors.New(errors.ErrInvalidConfig, "gateway config must have an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[cfg.ID]; exists {
		return errors.Newf(errors.ErrAlreadyRegistered, "gateway %s already configured", cfg.ID)
	}
	if _, exists := r.factories[cfg.Plugin]; !exists {
		return errors.Newf(errors.ErrPluginNotFound, "plugin %s not registered", cfg.Plugin).WithGateway(cfg.ID)
	}

	r.configs[cfg.ID] = cfg
	r.logger.Info("Gateway configured", "gateway", cfg.ID, "plugin", cfg.Plugin)
	return nil
}

// Gateway returns the configured gateway instance for id, creating it from
// its factory on first use.
func (r *Registry) Gateway(id string) (Gateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, exists := r.instances[id]; exists {
		return instance, nil
	}

	cfg, exists := r.configs[id]
	if !exists {
		return nil, errors.Newf(errors.ErrGatewayNotFound, "gateway %s not configured", id).WithGateway(id)
	}

	factory := r.factories[cfg.Plugin]
	instance, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidConfig, "failed to create gateway %s", id).WithGateway(id)
	}

	r.instances[id] = instance
	r.logger.Info("Gateway instance created", "gateway", id, "plugin", cfg.Plugin)
	return instance, nil
}

// SetDefault marks a configured gateway as the site-wide fallback.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[id]; !exists {
		return errors.Newf(errors.ErrGatewayNotFound, "gateway %s not configured", id).WithGateway(id)
	}
	r.defaultID = id
	return nil
}

// Default returns the fallback gateway, or nil when none is configured.
func (r *Registry) Default() (Gateway, error) {
	r.mu.RLock()
	id := r.defaultID
	r.mu.RUnlock()

	if id == "" {
		return nil, nil
	}
	return r.Gateway(id)
}

// SetDefaultMaxRecipients overrides the substitute batch size used when a
// driver does not declare MaxOutgoingRecipients.
func (r *Registry) SetDefaultMaxRecipients(max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if max != 0 {
		r.defaultMaxRecipients = max
	}
}

// EffectiveCapabilities returns the driver's capabilities with the recipient
// limit normalized. Only Unlimited passes through as a negative value; zero
// and any other negative declaration count as undeclared and get the
// registry default, so a malformed driver can never produce a zero or
// negative chunk size downstream.
func (r *Registry) EffectiveCapabilities(gw Gateway) Capabilities {
	caps := gw.Capabilities()
	if caps.MaxOutgoingRecipients <= 0 && caps.MaxOutgoingRecipients != Unlimited {
		r.mu.RLock()
		caps.MaxOutgoingRecipients = r.defaultMaxRecipients
		r.mu.RUnlock()
	}
	return caps
}

// Retention returns the retention policy configured for a gateway. Unknown
// gateways get the zero policy, which deletes immediately.
func (r *Registry) Retention(id string) RetentionPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, exists := r.configs[id]; exists {
		return cfg.Retention
	}
	return RetentionPolicy{}
}

// List returns the ids of all configured gateways.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	return ids
}

// Health checks the health of all instantiated gateways.
func (r *Registry) Health(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make(map[string]error)
	for id, instance := range r.instances {
		health[id] = instance.IsHealthy(ctx)
	}
	return health
}

// Close closes all instantiated gateways.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for id, instance := range r.instances {
		if err := instance.Close(); err != nil {
			r.logger.Error("Failed to close gateway", "gateway", id, "error", err)
			lastErr = err
		}
	}
	r.instances = make(map[string]Gateway)
	return lastErr
}
