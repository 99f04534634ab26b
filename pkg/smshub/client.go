// Package smshub provides the unified client entry point wiring the gateway
// registry, routing pipeline, dispatcher, queue workers and delivery-report
// reconciler together.
package smshub

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/smshub/pkg/config"
	"github.com/kart-io/smshub/pkg/dispatch"
	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/observability"
	"github.com/kart-io/smshub/pkg/pipeline"
	"github.com/kart-io/smshub/pkg/queue"
	"github.com/kart-io/smshub/pkg/reconcile"
	"github.com/kart-io/smshub/pkg/report"
	"github.com/kart-io/smshub/pkg/routing"
	"github.com/kart-io/smshub/pkg/store"
	"github.com/kart-io/smshub/pkg/webhook"
)

// Client is the top-level smshub interface.
type Client interface {
	// Send routes and dispatches a message synchronously, returning a
	// receipt with per-recipient outcomes. A submission may fan out across
	// gateways; one gateway failing does not block the others.
	Send(ctx context.Context, msg *message.Message) (*report.Receipt, error)

	// SendAsync routes the message, persists the resulting messages and
	// queues one work item each. Returns the queued message ids.
	SendAsync(ctx context.Context, msg *message.Message) ([]string, error)

	// Incoming runs received messages through the pipeline and dispatches
	// them to their gateways' incoming handling.
	Incoming(ctx context.Context, msgs []*message.Message) (*report.Receipt, error)

	// PullReports polls a pull-capable gateway for delivery reports and
	// reconciles them.
	PullReports(ctx context.Context, gatewayID string, messageIDs []string) (*reconcile.Outcome, error)

	// Webhook returns the HTTP boundary for push reports and incoming
	// messages.
	Webhook() *webhook.Server

	// Health reports gateway health and queue depth.
	Health(ctx context.Context) (*HealthStatus, error)

	// Close stops workers and releases all resources.
	Close() error
}

// HealthStatus summarizes client health.
type HealthStatus struct {
	Status     string            `json:"status"`
	Gateways   map[string]string `json:"gateways"`
	QueueDepth int               `json:"queue_depth"`
}

// Option customizes client construction with code-level collaborators that
// have no place in the data-only config: driver plugins, resolvers and
// incoming-message consumers.
type Option func(*clientImpl) error

// WithPlugin registers a gateway driver factory.
func WithPlugin(pluginID string, factory gateway.Factory) Option {
	return func(c *clientImpl) error {
		return c.registry.RegisterPlugin(pluginID, factory)
	}
}

// WithResolver appends a gateway resolver. Registration order matters: on a
// priority tie the last registered resolver wins.
func WithResolver(r routing.Resolver) Option {
	return func(c *clientImpl) error {
		c.engine.AddResolver(r)
		return nil
	}
}

// WithIncomingHandler registers a consumer for incoming messages.
func WithIncomingHandler(h dispatch.IncomingHandler) Option {
	return func(c *clientImpl) error {
		c.incomingHandlers = append(c.incomingHandlers, h)
		return nil
	}
}

type clientImpl struct {
	cfg              *config.Config
	registry         *gateway.Registry
	engine           *routing.Engine
	pipeline         *pipeline.Pipeline
	dispatcher       *dispatch.Dispatcher
	reconciler       *reconcile.Reconciler
	messages         store.MessageStore
	reports          store.ReportStore
	queue            queue.Queue
	workers          *queue.WorkerPool
	webhookServer    *webhook.Server
	telemetry        *observability.Telemetry
	storeClient      *redis.Client
	incomingHandlers []dispatch.IncomingHandler
	logger           logger.Logger
	workerCancel     context.CancelFunc
}

// New creates a fully wired client from configuration. Plugins referenced by
// configured gateways must be registered through WithPlugin options.
func New(cfg *config.Config, opts ...Option) (Client, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.New(); err != nil {
			return nil, err
		}
	}
	log := cfg.Logger()

	c := &clientImpl{
		cfg:      cfg,
		registry: gateway.NewRegistry(log),
		logger:   log,
	}
	c.registry.SetDefaultMaxRecipients(cfg.DefaultMaxRecipients)
	c.engine = routing.NewEngine(c.registry, log)

	// Plugins and resolvers first, gateway configs depend on them.
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	for i := range cfg.Gateways {
		gwCfg := cfg.Gateways[i]
		if err := c.registry.AddGateway(&gwCfg); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultGateway != "" {
		if err := c.registry.SetDefault(cfg.DefaultGateway); err != nil {
			return nil, err
		}
	}

	telemetry, err := observability.New(cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	c.telemetry = telemetry

	if err := c.initStores(); err != nil {
		return nil, err
	}

	c.pipeline = pipeline.New(c.registry, c.engine, log)
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		c.pipeline.SetReportURLBuilder(func(gatewayID string) (string, error) {
			return webhook.ReportURL(baseURL, gatewayID)
		})
	}

	c.dispatcher = dispatch.NewDispatcher(c.registry, c.messages, c.reports, log)
	for _, h := range c.incomingHandlers {
		c.dispatcher.AddIncomingHandler(h)
	}
	c.reconciler = reconcile.NewReconciler(c.reports, log)

	if err := c.initQueue(); err != nil {
		return nil, err
	}

	c.webhookServer = webhook.NewServer(c.registry, c.reconciler, c, cfg.Webhook, log)

	log.Info("smshub client created",
		"gateways", len(cfg.Gateways),
		"queue", cfg.Queue.Type,
		"store", cfg.Store.Type)
	return c, nil
}

func (c *clientImpl) initStores() error {
	if c.cfg.Store.Type == "redis" {
		c.storeClient = redis.NewClient(&redis.Options{
			Addr: c.cfg.Store.RedisAddr,
			DB:   c.cfg.Store.RedisDB,
		})
		c.messages = store.NewRedisMessageStore(c.storeClient, c.cfg.Store.KeyPrefix)
		c.reports = store.NewRedisReportStore(c.storeClient, c.cfg.Store.KeyPrefix)
		return nil
	}
	c.messages = store.NewMemoryMessageStore()
	c.reports = store.NewMemoryReportStore()
	return nil
}

func (c *clientImpl) initQueue() error {
	var err error
	if c.cfg.Queue.Type == "redis" {
		c.queue, err = queue.NewRedisQueue(c.cfg.Queue.Redis, c.cfg.Queue.Capacity, c.logger)
		if err != nil {
			return err
		}
	} else {
		c.queue = queue.NewMemoryQueue(c.cfg.Queue.Capacity, c.logger)
	}

	c.workers = queue.NewWorkerPool(c.queue, c.handleItem, c.cfg.Queue.Workers, c.logger)
	c.workers.SetRetryPolicy(c.cfg.Queue.Retry)

	workerCtx, cancel := context.WithCancel(context.Background())
	c.workerCancel = cancel
	return c.workers.Start(workerCtx)
}

// handleItem is the queue worker handler: load the persisted message and
// dispatch it in its direction.
func (c *clientImpl) handleItem(ctx context.Context, item *queue.Item) error {
	msg, err := c.messages.Get(ctx, item.MessageID)
	if err == store.ErrNotFound {
		// Deleted since it was queued; nothing left to do.
		c.logger.Warn("Queued message no longer exists", "message", item.MessageID)
		return nil
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if item.Direction == message.DirectionIncoming {
		_, err = c.dispatcher.DispatchIncoming(ctx, msg)
	} else {
		sendCtx, span := c.telemetry.StartSend(ctx, msg.GatewayID, len(msg.Recipients))
		started := time.Now()
		_, err = c.dispatcher.DispatchOutgoing(sendCtx, msg)
		c.telemetry.RecordSend(sendCtx, span, msg.GatewayID, started, err)
	}
	if err == nil {
		c.telemetry.RecordEnqueued(ctx, -1)
	}
	return err
}

// Send routes and dispatches a message synchronously.
func (c *clientImpl) Send(ctx context.Context, msg *message.Message) (*report.Receipt, error) {
	processed, err := c.pipeline.Process(ctx, []*message.Message{msg}, message.DirectionOutgoing)
	if err != nil {
		return nil, err
	}

	receipt := report.NewReceipt(msg.ID)
	for _, out := range processed {
		c.dispatchInto(ctx, out, receipt)
	}
	return receipt, nil
}

// dispatchInto dispatches one normalized message and folds its per-recipient
// outcomes into the receipt. Transport errors mark every recipient of that
// message failed without aborting sibling messages.
func (c *clientImpl) dispatchInto(ctx context.Context, msg *message.Message, receipt *report.Receipt) {
	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	traceCtx, span := c.telemetry.StartSend(sendCtx, msg.GatewayID, len(msg.Recipients))
	started := time.Now()
	res, err := c.dispatcher.DispatchOutgoing(traceCtx, msg)
	c.telemetry.RecordSend(traceCtx, span, msg.GatewayID, started, err)

	if err != nil {
		for _, recipient := range msg.Recipients {
			receipt.AddResult(report.RecipientResult{
				Gateway:   msg.GatewayID,
				Recipient: recipient,
				Success:   false,
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
		}
		return
	}

	for _, rep := range res.Reports {
		receipt.AddResult(report.RecipientResult{
			Gateway:   msg.GatewayID,
			Recipient: rep.Recipient,
			Success:   rep.Status != report.StatusFailed && rep.Status != report.StatusRejected,
			MessageID: rep.MessageID,
			Error:     rep.StatusMessage,
			Timestamp: time.Now(),
		})
	}
}

// SendAsync routes the message, persists the results and queues work items.
func (c *clientImpl) SendAsync(ctx context.Context, msg *message.Message) ([]string, error) {
	processed, err := c.pipeline.Process(ctx, []*message.Message{msg}, message.DirectionOutgoing)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(processed))
	for _, out := range processed {
		out.Queued = true
		if err := c.messages.Save(ctx, out); err != nil {
			return ids, err
		}

		item := queue.NewItem(out.ID, message.DirectionOutgoing)
		// Schedule-aware gateways receive scheduled messages immediately;
		// for everyone else the queue holds them until due.
		if out.ScheduledAt != nil && !c.scheduleAware(out.GatewayID) {
			item.Delay(*out.ScheduledAt)
		}
		if err := c.queue.Enqueue(ctx, item); err != nil {
			return ids, err
		}

		c.telemetry.RecordEnqueued(ctx, 1)
		ids = append(ids, out.ID)
	}
	return ids, nil
}

func (c *clientImpl) scheduleAware(gatewayID string) bool {
	gw, err := c.registry.Gateway(gatewayID)
	if err != nil {
		return false
	}
	return gw.Capabilities().ScheduleAware
}

// Incoming runs received messages through the pipeline and dispatch.
func (c *clientImpl) Incoming(ctx context.Context, msgs []*message.Message) (*report.Receipt, error) {
	processed, err := c.pipeline.Process(ctx, msgs, message.DirectionIncoming)
	if err != nil {
		return nil, err
	}

	receipt := report.NewReceipt("incoming")
	for _, msg := range processed {
		res, err := c.dispatcher.DispatchIncoming(ctx, msg)
		if err != nil {
			for _, recipient := range msg.Recipients {
				receipt.AddResult(report.RecipientResult{
					Gateway:   msg.GatewayID,
					Recipient: recipient,
					Success:   false,
					Error:     err.Error(),
					Timestamp: time.Now(),
				})
			}
			continue
		}
		for _, rep := range res.Reports {
			receipt.AddResult(report.RecipientResult{
				Gateway:   msg.GatewayID,
				Recipient: rep.Recipient,
				Success:   rep.Status != report.StatusFailed && rep.Status != report.StatusRejected,
				MessageID: rep.MessageID,
				Timestamp: time.Now(),
			})
		}
	}
	return receipt, nil
}

// PullReports polls a pull-capable gateway and reconciles the reports.
func (c *clientImpl) PullReports(ctx context.Context, gatewayID string, messageIDs []string) (*reconcile.Outcome, error) {
	gw, err := c.registry.Gateway(gatewayID)
	if err != nil {
		return nil, err
	}

	source, ok := gw.(gateway.PullReportSource)
	if !ok || !gw.Capabilities().SupportsPullReports {
		return nil, errors.Newf(errors.ErrUnsupportedOperation,
			"gateway %s does not support pull reports", gatewayID).WithGateway(gatewayID)
	}

	reports, err := source.PullDeliveryReports(ctx, messageIDs)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrGatewayTransport,
			"gateway %s pull failed", gatewayID).WithGateway(gatewayID)
	}

	outcome, err := c.reconciler.Reconcile(ctx, reports)
	if outcome != nil {
		c.telemetry.RecordReconciliation(ctx, outcome.Updated, outcome.Dropped)
	}
	return outcome, err
}

// Webhook returns the HTTP boundary server.
func (c *clientImpl) Webhook() *webhook.Server {
	return c.webhookServer
}

// Health reports gateway health and queue depth.
func (c *clientImpl) Health(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Status:     "healthy",
		Gateways:   make(map[string]string),
		QueueDepth: c.queue.Size(),
	}
	for id, err := range c.registry.Health(ctx) {
		if err != nil {
			status.Gateways[id] = err.Error()
			status.Status = "degraded"
		} else {
			status.Gateways[id] = "ok"
		}
	}
	return status, nil
}

// Close stops workers and releases all resources.
func (c *clientImpl) Close() error {
	var lastErr error

	if c.workers != nil {
		if err := c.workers.Stop(); err != nil {
			lastErr = err
		}
	}
	if c.workerCancel != nil {
		c.workerCancel()
	}
	if c.queue != nil {
		if err := c.queue.Close(); err != nil {
			lastErr = err
		}
	}
	if c.storeClient != nil {
		if err := c.storeClient.Close(); err != nil {
			lastErr = err
		}
	}
	if err := c.registry.Close(); err != nil {
		lastErr = err
	}
	if c.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.telemetry.Shutdown(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
