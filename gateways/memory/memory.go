// Package memory provides an in-memory gateway driver used by tests and
// local development. It records every sent message, supports incoming
// messages and both push and pull delivery reports, and can be scripted to
// return particular statuses per recipient.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

// PluginID identifies this driver in the gateway registry.
const PluginID = "memory"

// Settings keys.
const (
	// SettingMaxRecipients overrides the declared recipient limit.
	SettingMaxRecipients = "max_recipients"
)

// Gateway is the in-memory capture driver.
type Gateway struct {
	id            string
	maxRecipients int
	seq           int64

	sent     []*message.Message
	received []*message.Message
	statuses map[string]report.Status
	pending  []*report.DeliveryReport
	mu       sync.Mutex
}

// Factory creates memory gateways.
func Factory() gateway.Factory {
	return func(cfg *gateway.Config) (gateway.Gateway, error) {
		g := &Gateway{
			id:       cfg.ID,
			sent:     make([]*message.Message, 0),
			received: make([]*message.Message, 0),
			statuses: make(map[string]report.Status),
			pending:  make([]*report.DeliveryReport, 0),
		}
		switch v := cfg.Settings[SettingMaxRecipients].(type) {
		case int:
			g.maxRecipients = v
		case float64:
			g.maxRecipients = int(v)
		}
		return g, nil
	}
}

// ID returns the configured gateway identifier.
func (g *Gateway) ID() string { return g.id }

// Capabilities returns the driver's declared capabilities.
func (g *Gateway) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{
		MaxOutgoingRecipients:   g.maxRecipients,
		SupportsIncoming:        true,
		SupportsPushReports:     true,
		SupportsPullReports:     true,
		AutoCreateIncomingRoute: true,
	}
}

// ScriptStatus makes future sends to a recipient report the given status.
func (g *Gateway) ScriptStatus(recipient string, status report.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[recipient] = status
}

// Send records the message and returns one report per recipient.
func (g *Gateway) Send(_ context.Context, msg *message.Message) (*report.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = append(g.sent, msg.Clone())

	res := report.NewResult()
	for _, recipient := range msg.Recipients {
		status, ok := g.statuses[recipient]
		if !ok {
			status = report.StatusQueued
		}
		rep := report.NewDeliveryReport(recipient, status).
			WithMessageID(fmt.Sprintf("%s-%d", g.id, atomic.AddInt64(&g.seq, 1)))
		res.AddReport(rep)
	}
	return res, nil
}

// Incoming records a received message.
func (g *Gateway) Incoming(_ context.Context, msg *message.Message) (*report.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.received = append(g.received, msg.Clone())

	res := report.NewResult()
	for _, recipient := range msg.Recipients {
		res.AddReport(report.NewDeliveryReport(recipient, report.StatusDelivered))
	}
	return res, nil
}

// ParseIncoming decodes a JSON array of incoming messages.
func (g *Gateway) ParseIncoming(_ context.Context, body []byte) ([]*message.Message, error) {
	var payload []struct {
		Sender     string   `json:"sender"`
		Recipients []string `json:"recipients"`
		Body       string   `json:"body"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid incoming payload: %w", err)
	}

	msgs := make([]*message.Message, 0, len(payload))
	for _, p := range payload {
		msg := message.NewIncoming().
			SetSender(p.Sender).
			SetRecipients(p.Recipients).
			SetBody(p.Body)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ParseDeliveryReports decodes a JSON array of delivery reports.
func (g *Gateway) ParseDeliveryReports(_ context.Context, body []byte) ([]*report.DeliveryReport, error) {
	var reports []*report.DeliveryReport
	if err := json.Unmarshal(body, &reports); err != nil {
		return nil, fmt.Errorf("invalid report payload: %w", err)
	}
	return reports, nil
}

// QueueReport schedules a report to be returned by the next pull.
func (g *Gateway) QueueReport(rep *report.DeliveryReport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, rep)
}

// PullDeliveryReports drains scheduled reports, optionally filtered by
// message id.
func (g *Gateway) PullDeliveryReports(_ context.Context, messageIDs []string) ([]*report.DeliveryReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(messageIDs) == 0 {
		out := g.pending
		g.pending = make([]*report.DeliveryReport, 0)
		return out, nil
	}

	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	out := make([]*report.DeliveryReport, 0)
	rest := make([]*report.DeliveryReport, 0)
	for _, rep := range g.pending {
		if wanted[rep.MessageID] {
			out = append(out, rep)
		} else {
			rest = append(rest, rep)
		}
	}
	g.pending = rest
	return out, nil
}

// Sent returns copies of all messages sent through this gateway.
func (g *Gateway) Sent() []*message.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*message.Message, len(g.sent))
	copy(out, g.sent)
	return out
}

// Received returns copies of all incoming messages handled by this gateway.
func (g *Gateway) Received() []*message.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*message.Message, len(g.received))
	copy(out, g.received)
	return out
}

// IsHealthy always succeeds.
func (g *Gateway) IsHealthy(context.Context) error { return nil }

// Close releases nothing.
func (g *Gateway) Close() error { return nil }
