// Package gateway provides the gateway driver interface and the configured
// gateway registry for smshub.
package gateway

import (
	"context"
	"time"

	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

// Capabilities describes what a gateway driver supports and its limits.
//
// MaxOutgoingRecipients of 0 means "not declared": the registry substitutes
// its configured default batch size rather than assuming unlimited, so an
// undocumented provider limit is never exceeded by accident. Unlimited must
// be declared explicitly as -1.
type Capabilities struct {
	MaxOutgoingRecipients   int  `json:"max_outgoing_recipients"`
	SupportsIncoming        bool `json:"supports_incoming"`
	SupportsPushReports     bool `json:"supports_push_reports"`
	SupportsPullReports     bool `json:"supports_pull_reports"`
	ScheduleAware           bool `json:"schedule_aware"`
	AutoCreateIncomingRoute bool `json:"auto_create_incoming_route"`
}

// Unlimited declares no recipient-per-batch limit.
const Unlimited = -1

// RetentionPolicy controls how long processed messages are kept, per
// direction. Zero deletes the record immediately after processing.
// RetentionForever keeps it indefinitely.
type RetentionPolicy struct {
	Outgoing time.Duration `json:"outgoing"`
	Incoming time.Duration `json:"incoming"`
}

// RetentionForever keeps processed messages indefinitely.
const RetentionForever = time.Duration(-1)

// For returns the retention duration for a direction.
func (p RetentionPolicy) For(dir message.Direction) time.Duration {
	if dir == message.DirectionIncoming {
		return p.Incoming
	}
	return p.Outgoing
}

// Gateway is the driver interface implemented per SMS provider.
//
// Send must return one delivery report per recipient where the provider
// allows it; the dispatcher fills in unknown-status reports for recipients
// the driver omitted. Drivers advertise extra abilities through the optional
// interfaces below, gated by the corresponding capability flags.
type Gateway interface {
	// ID returns the configured gateway identifier.
	ID() string

	// Capabilities returns the driver's declared capabilities.
	Capabilities() Capabilities

	// Send delivers an outgoing message to all of its recipients.
	Send(ctx context.Context, msg *message.Message) (*report.Result, error)

	// IsHealthy reports whether the gateway can currently be used.
	IsHealthy(ctx context.Context) error

	// Close releases driver resources.
	Close() error
}

// IncomingReceiver is implemented by drivers that accept incoming messages.
// Only consulted when Capabilities.SupportsIncoming is set.
type IncomingReceiver interface {
	// Incoming processes a message received from the provider.
	Incoming(ctx context.Context, msg *message.Message) (*report.Result, error)
}

// IncomingParser is implemented by drivers that can decode a raw inbound
// webhook body into messages.
type IncomingParser interface {
	// ParseIncoming decodes a raw webhook request body into messages.
	ParseIncoming(ctx context.Context, body []byte) ([]*message.Message, error)
}

// PushReportParser is implemented by drivers whose provider pushes delivery
// reports to a webhook. Only consulted when SupportsPushReports is set.
type PushReportParser interface {
	// ParseDeliveryReports decodes a raw webhook request body into reports.
	ParseDeliveryReports(ctx context.Context, body []byte) ([]*report.DeliveryReport, error)
}

// PullReportSource is implemented by drivers whose provider must be polled
// for delivery reports. Only consulted when SupportsPullReports is set.
type PullReportSource interface {
	// PullDeliveryReports fetches reports, optionally limited to messageIDs.
	PullDeliveryReports(ctx context.Context, messageIDs []string) ([]*report.DeliveryReport, error)
}

// CreditBalancer is implemented by drivers that expose an account balance.
type CreditBalancer interface {
	// CreditsBalance returns the remaining provider credit balance.
	CreditsBalance(ctx context.Context) (float64, error)
}

// Config describes one configured gateway instance.
type Config struct {
	// ID is the unique stable identifier of this gateway instance.
	ID string `json:"id" yaml:"id"`

	// Plugin identifies which registered driver implementation to use.
	Plugin string `json:"plugin" yaml:"plugin"`

	// Settings holds driver-specific configuration.
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Retention controls per-direction message retention after processing.
	Retention RetentionPolicy `json:"retention" yaml:"retention"`
}

// Factory creates a gateway instance from its configuration.
type Factory func(cfg *Config) (Gateway, error)
