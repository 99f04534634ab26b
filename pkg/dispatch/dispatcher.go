// Package dispatch invokes gateway drivers for fully-normalized messages and
// turns driver results into normalized reports.
package dispatch

import (
	"context"
	"time"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
	"github.com/kart-io/smshub/pkg/store"
)

// IncomingHandler consumes an incoming message after its gateway has
// processed it.
type IncomingHandler func(ctx context.Context, msg *message.Message, res *report.Result) error

// Dispatcher calls gateway drivers and applies the post-dispatch retention
// policy. It never retries: transport failures surface to the caller and any
// retry policy lives in the queue worker layer.
type Dispatcher struct {
	registry *gateway.Registry
	messages store.MessageStore
	reports  store.ReportStore
	handlers []IncomingHandler
	logger   logger.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *gateway.Registry, messages store.MessageStore, reports store.ReportStore, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard
	}
	return &Dispatcher{
		registry: registry,
		messages: messages,
		reports:  reports,
		handlers: make([]IncomingHandler, 0),
		logger:   log,
		now:      time.Now,
	}
}

// AddIncomingHandler registers a consumer for incoming messages. Handlers run
// in registration order.
func (d *Dispatcher) AddIncomingHandler(handler IncomingHandler) {
	d.handlers = append(d.handlers, handler)
}

// DispatchOutgoing sends a normalized message through its gateway and returns
// the normalized result. Reports with a provider message id are persisted so
// later asynchronous delivery reports can be reconciled against them.
func (d *Dispatcher) DispatchOutgoing(ctx context.Context, msg *message.Message) (*report.Result, error) {
	gw, err := d.registry.Gateway(msg.GatewayID)
	if err != nil {
		return nil, err
	}

	res, err := gw.Send(ctx, msg)
	if err != nil {
		d.logger.Error("Gateway send failed",
			"message", msg.ID, "gateway", msg.GatewayID, "error", err)
		return nil, errors.Wrapf(err, errors.ErrGatewayTransport,
			"gateway %s send failed", msg.GatewayID).WithGateway(msg.GatewayID)
	}

	res = d.normalize(res, msg)
	d.persistReports(ctx, res)

	if err := d.finalize(ctx, msg); err != nil {
		return res, err
	}

	d.logger.Info("Message dispatched",
		"message", msg.ID, "gateway", msg.GatewayID, "recipients", len(msg.Recipients))
	return res, nil
}

// DispatchIncoming routes an incoming message through its gateway's incoming
// handler and then to all registered consumers. Gateways that do not
// advertise incoming support fail with UNSUPPORTED_OPERATION.
func (d *Dispatcher) DispatchIncoming(ctx context.Context, msg *message.Message) (*report.Result, error) {
	gw, err := d.registry.Gateway(msg.GatewayID)
	if err != nil {
		return nil, err
	}

	receiver, ok := gw.(gateway.IncomingReceiver)
	if !ok || !gw.Capabilities().SupportsIncoming {
		return nil, errors.Newf(errors.ErrUnsupportedOperation,
			"gateway %s does not support incoming messages", msg.GatewayID).WithGateway(msg.GatewayID)
	}

	res, err := receiver.Incoming(ctx, msg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrGatewayTransport,
			"gateway %s incoming failed", msg.GatewayID).WithGateway(msg.GatewayID)
	}
	res = d.normalize(res, msg)

	for _, handler := range d.handlers {
		if err := handler(ctx, msg, res); err != nil {
			d.logger.Error("Incoming handler failed", "message", msg.ID, "error", err)
		}
	}

	if err := d.finalize(ctx, msg); err != nil {
		return res, err
	}
	return res, nil
}

// normalize guarantees one report per recipient. Drivers may return fewer
// reports than recipients; the gap is filled with unknown-status reports so
// downstream accounting always sees the full recipient list.
func (d *Dispatcher) normalize(res *report.Result, msg *message.Message) *report.Result {
	if res == nil {
		res = report.NewResult()
	}
	for _, recipient := range msg.Recipients {
		if res.ReportFor(recipient) == nil {
			res.AddReport(report.NewDeliveryReport(recipient, report.StatusUnknown))
		}
	}
	return res
}

// persistReports stores reports that carry a provider message id. Reports
// without one can never be reconciled and are not stored.
func (d *Dispatcher) persistReports(ctx context.Context, res *report.Result) {
	if d.reports == nil {
		return
	}
	for _, rep := range res.Reports {
		if rep.MessageID == "" {
			continue
		}
		if err := d.reports.Save(ctx, rep); err != nil {
			d.logger.Error("Failed to persist delivery report",
				"messageID", rep.MessageID, "error", err)
		}
	}
}

// finalize applies the gateway's retention policy: zero retention deletes the
// record immediately, anything else marks it processed and persists it.
func (d *Dispatcher) finalize(ctx context.Context, msg *message.Message) error {
	if d.messages == nil {
		return nil
	}

	retention := d.registry.Retention(msg.GatewayID).For(msg.Direction)
	if retention == 0 {
		if err := d.messages.Delete(ctx, msg.ID); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to delete message %s", msg.ID)
		}
		d.logger.Debug("Message deleted per retention policy", "message", msg.ID)
		return nil
	}

	msg.MarkProcessed(d.now())
	if err := d.messages.Save(ctx, msg); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to persist message %s", msg.ID)
	}
	return nil
}
