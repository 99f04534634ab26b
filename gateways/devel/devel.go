// Package devel provides a development gateway that logs outgoing messages
// instead of delivering them. Every recipient gets a fabricated DELIVERED
// report, except recipients matching the configured failure prefix, which
// lets failure paths be exercised without a real provider.
package devel

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

// PluginID identifies this driver in the gateway registry.
const PluginID = "devel"

// Settings keys.
const (
	// SettingFailPrefix makes sends to numbers with this prefix fail.
	SettingFailPrefix = "fail_prefix"
)

// Gateway is the development driver.
type Gateway struct {
	id         string
	failPrefix string
	logger     logger.Logger
}

// Factory creates devel gateways with the given logger.
func Factory(log logger.Logger) gateway.Factory {
	if log == nil {
		log = logger.Discard
	}
	return func(cfg *gateway.Config) (gateway.Gateway, error) {
		g := &Gateway{id: cfg.ID, logger: log}
		if prefix, ok := cfg.Settings[SettingFailPrefix].(string); ok {
			g.failPrefix = prefix
		}
		return g, nil
	}
}

// ID returns the configured gateway identifier.
func (g *Gateway) ID() string { return g.id }

// Capabilities returns the driver's declared capabilities.
func (g *Gateway) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{
		MaxOutgoingRecipients: gateway.Unlimited,
		ScheduleAware:         true,
	}
}

// Send logs the message and fabricates one report per recipient.
func (g *Gateway) Send(_ context.Context, msg *message.Message) (*report.Result, error) {
	res := report.NewResult()
	for _, recipient := range msg.Recipients {
		if g.failPrefix != "" && strings.HasPrefix(recipient, g.failPrefix) {
			res.AddReport(report.NewDeliveryReport(recipient, report.StatusFailed).
				WithMessageID(uuid.NewString()).
				WithStatusMessage("simulated failure"))
			continue
		}

		g.logger.Info("devel gateway send",
			"gateway", g.id, "recipient", recipient,
			"sender", msg.Sender, "body", msg.Body)
		res.AddReport(report.NewDeliveryReport(recipient, report.StatusDelivered).
			WithMessageID(uuid.NewString()))
	}
	return res, nil
}

// IsHealthy always succeeds.
func (g *Gateway) IsHealthy(context.Context) error { return nil }

// Close releases nothing.
func (g *Gateway) Close() error { return nil }
