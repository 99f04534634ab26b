// Package pipeline provides the message routing pipeline: the normalization
// pass every batch goes through before gateway dispatch.
//
// Stages run in a fixed order because later stages depend on earlier ones
// (a message's gateway must be known before chunking by its limit):
//
//  1. ensureRecipients — every message has at least one recipient, or the
//     whole batch fails.
//  2. ensureGateways — every message ends up bound to exactly one gateway,
//     fanning out messages whose recipients resolve to different gateways,
//     or the whole batch fails.
//  3. attachReportURL — outgoing only; derive a delivery-report callback URL
//     from the gateway's push endpoint. Best effort, never fails the batch.
//  4. chunkMaxRecipients — split messages exceeding the gateway's recipient
//     limit into contiguous chunks. Pure restructuring, cannot fail.
//
// Stages 1 and 2 are atomic: they raise before any gateway is called, so a
// batch with one invalid message produces no partial side effects.
package pipeline

import (
	"context"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/routing"
)

// ReportURLBuilder derives the push delivery-report callback URL for a
// gateway. Returning an error leaves the option unset without failing the
// batch.
type ReportURLBuilder func(gatewayID string) (string, error)

// Pipeline normalizes message batches ahead of dispatch.
type Pipeline struct {
	registry  *gateway.Registry
	engine    *routing.Engine
	reportURL ReportURLBuilder
	logger    logger.Logger
}

// New creates a routing pipeline.
func New(registry *gateway.Registry, engine *routing.Engine, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard
	}
	return &Pipeline{
		registry: registry,
		engine:   engine,
		logger:   log,
	}
}

// SetReportURLBuilder installs the callback URL builder used by the
// attachReportURL stage. Without one the stage is a no-op.
func (p *Pipeline) SetReportURLBuilder(builder ReportURLBuilder) {
	p.reportURL = builder
}

// Process runs all stages over the batch and returns the normalized
// messages. Input order is preserved: fan-out and chunks of message i appear
// before anything derived from message i+1, and recipient order is preserved
// within each output message.
func (p *Pipeline) Process(ctx context.Context, msgs []*message.Message, dir message.Direction) ([]*message.Message, error) {
	if err := p.ensureRecipients(msgs); err != nil {
		return nil, err
	}

	msgs, err := p.ensureGateways(ctx, msgs, dir)
	if err != nil {
		return nil, err
	}

	if dir == message.DirectionOutgoing {
		p.attachReportURL(msgs)
	}

	msgs, err = p.chunkMaxRecipients(msgs)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Pipeline processed batch", "direction", dir, "messages", len(msgs))
	return msgs, nil
}

// ensureRecipients fails the whole batch when any message has no recipients.
func (p *Pipeline) ensureRecipients(msgs []*message.Message) error {
	for _, msg := range msgs {
		if len(msg.Recipients) == 0 {
			return errors.Newf(errors.ErrNoRecipients, "message %s has no recipients", msg.ID)
		}
	}
	return nil
}

// ensureGateways binds every message to exactly one gateway. Messages
// already carrying a gateway pass through unchanged; the rest are resolved
// per recipient and fanned out into one clone per distinct gateway.
func (p *Pipeline) ensureGateways(ctx context.Context, msgs []*message.Message, dir message.Direction) ([]*message.Message, error) {
	result := make([]*message.Message, 0, len(msgs))

	for _, msg := range msgs {
		if msg.GatewayID != "" {
			msg.Direction = dir
			result = append(result, msg)
			continue
		}

		// Group recipients by resolved gateway, preserving both the order
		// gateways are first seen and recipient order within each group.
		groups := make(map[string][]string)
		order := make([]string, 0)
		for _, recipient := range msg.Recipients {
			gw, err := p.engine.ResolveGateway(ctx, recipient)
			if err != nil {
				return nil, err
			}
			id := gw.ID()
			if _, seen := groups[id]; !seen {
				order = append(order, id)
			}
			groups[id] = append(groups[id], recipient)
		}

		for _, id := range order {
			clone := msg.Clone()
			clone.Direction = dir
			clone.SetRecipients(groups[id])
			clone.SetGateway(id)
			result = append(result, clone)
		}

		if len(order) > 1 {
			p.logger.Debug("Message fanned out across gateways",
				"message", msg.ID, "gateways", len(order))
		}
	}
	return result, nil
}

// attachReportURL sets the delivery-report callback option on outgoing
// messages that lack one. Failures to build a URL are logged and ignored.
func (p *Pipeline) attachReportURL(msgs []*message.Message) {
	if p.reportURL == nil {
		return
	}
	for _, msg := range msgs {
		if msg.Option(message.OptionDeliveryReportURL) != nil {
			continue
		}
		url, err := p.reportURL(msg.GatewayID)
		if err != nil {
			p.logger.Warn("Could not build delivery report URL",
				"message", msg.ID, "gateway", msg.GatewayID, "error", err)
			continue
		}
		msg.SetOption(message.OptionDeliveryReportURL, url)
	}
}

// chunkMaxRecipients splits messages whose recipient count exceeds their
// gateway's limit into contiguous chunks. Chunk N's recipients are a
// contiguous slice of the original ordered list.
func (p *Pipeline) chunkMaxRecipients(msgs []*message.Message) ([]*message.Message, error) {
	result := make([]*message.Message, 0, len(msgs))

	for _, msg := range msgs {
		gw, err := p.registry.Gateway(msg.GatewayID)
		if err != nil {
			return nil, err
		}

		max := p.registry.EffectiveCapabilities(gw).MaxOutgoingRecipients
		if max == gateway.Unlimited || len(msg.Recipients) <= max {
			result = append(result, msg)
			continue
		}

		recipients := msg.Recipients
		for start := 0; start < len(recipients); start += max {
			end := start + max
			if end > len(recipients) {
				end = len(recipients)
			}
			chunk := msg.Clone()
			chunk.SetRecipients(append([]string(nil), recipients[start:end]...))
			result = append(result, chunk)
		}

		p.logger.Debug("Message chunked by recipient limit",
			"message", msg.ID, "limit", max,
			"chunks", (len(recipients)+max-1)/max)
	}
	return result, nil
}
