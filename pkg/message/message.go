// Package message provides the SMS message aggregate used throughout smshub.
package message

import (
	"time"

	"github.com/google/uuid"

	"github.com/kart-io/smshub/pkg/errors"
)

// Direction represents the direction of a message.
type Direction string

const (
	// DirectionOutgoing marks a message sent from the application to recipients.
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming marks a message received from a gateway.
	DirectionIncoming Direction = "incoming"
)

// Well-known option keys.
const (
	// OptionDeliveryReportURL is the callback URL a gateway should push
	// delivery reports to.
	OptionDeliveryReportURL = "delivery_report_url"

	// OptionAutomated marks a message generated by the system rather than
	// a person.
	OptionAutomated = "automated"
)

// Message represents a unit of SMS communication.
//
// Recipients are an ordered list of phone number strings. After pipeline
// processing every message is bound to exactly one gateway via GatewayID.
type Message struct {
	ID          string                 `json:"id"`
	Sender      string                 `json:"sender,omitempty"`
	Recipients  []string               `json:"recipients"`
	Body        string                 `json:"body"`
	Direction   Direction              `json:"direction"`
	GatewayID   string                 `json:"gateway_id,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Queued      bool                   `json:"queued"`
	CreatedAt   time.Time              `json:"created_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	ScheduledAt *time.Time             `json:"scheduled_at,omitempty"`
}

// New creates a new outgoing message with default values.
func New() *Message {
	return &Message{
		ID:         uuid.NewString(),
		Recipients: make([]string, 0),
		Direction:  DirectionOutgoing,
		Options:    make(map[string]interface{}),
		CreatedAt:  time.Now(),
	}
}

// NewIncoming creates a new incoming message.
func NewIncoming() *Message {
	msg := New()
	msg.Direction = DirectionIncoming
	return msg
}

// SetSender sets the originating identity or number.
func (m *Message) SetSender(sender string) *Message {
	m.Sender = sender
	return m
}

// SetBody sets the message text content.
func (m *Message) SetBody(body string) *Message {
	m.Body = body
	return m
}

// AddRecipient appends a recipient phone number.
func (m *Message) AddRecipient(number string) *Message {
	m.Recipients = append(m.Recipients, number)
	return m
}

// SetRecipients replaces the recipient list.
func (m *Message) SetRecipients(numbers []string) *Message {
	m.Recipients = numbers
	return m
}

// SetGateway binds the message to a configured gateway.
func (m *Message) SetGateway(gatewayID string) *Message {
	m.GatewayID = gatewayID
	return m
}

// SetOption sets a free-form per-message option.
func (m *Message) SetOption(key string, value interface{}) *Message {
	if m.Options == nil {
		m.Options = make(map[string]interface{})
	}
	m.Options[key] = value
	return m
}

// Option returns the option value for key, nil when absent.
func (m *Message) Option(key string) interface{} {
	if m.Options == nil {
		return nil
	}
	return m.Options[key]
}

// ScheduleAt schedules the message for later delivery.
func (m *Message) ScheduleAt(at time.Time) *Message {
	m.ScheduledAt = &at
	return m
}

// IsScheduled returns true if the message is scheduled for the future.
func (m *Message) IsScheduled() bool {
	return m.ScheduledAt != nil && m.ScheduledAt.After(time.Now())
}

// MarkProcessed stamps the message as processed and no longer queued.
func (m *Message) MarkProcessed(at time.Time) {
	m.ProcessedAt = &at
	m.Queued = false
}

// Clone returns a structural copy of the message with a fresh id. Used by the
// routing pipeline when a message fans out across gateways or is chunked by a
// recipient limit. The clone shares no mutable state with the original.
func (m *Message) Clone() *Message {
	clone := *m
	clone.ID = uuid.NewString()

	clone.Recipients = make([]string, len(m.Recipients))
	copy(clone.Recipients, m.Recipients)

	if m.Options != nil {
		clone.Options = make(map[string]interface{}, len(m.Options))
		for k, v := range m.Options {
			clone.Options[k] = v
		}
	}
	if m.ProcessedAt != nil {
		at := *m.ProcessedAt
		clone.ProcessedAt = &at
	}
	if m.ScheduledAt != nil {
		at := *m.ScheduledAt
		clone.ScheduledAt = &at
	}
	return &clone
}

// Validate validates the message.
func (m *Message) Validate() error {
	if m.Direction != DirectionOutgoing && m.Direction != DirectionIncoming {
		return errors.Newf(errors.ErrInvalidMessage, "invalid direction %q", m.Direction)
	}
	if len(m.Recipients) == 0 {
		return errors.New(errors.ErrNoRecipients, "message must have at least one recipient")
	}
	return nil
}
