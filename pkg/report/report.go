// Package report provides delivery report and send result structures.
package report

import "time"

// Status represents the delivery status of a message to one recipient.
type Status string

const (
	// StatusUnknown means the gateway reported nothing usable yet.
	StatusUnknown Status = "unknown"
	// StatusQueued means the provider accepted the message for delivery.
	StatusQueued Status = "queued"
	// StatusSent means the provider handed the message to the carrier.
	StatusSent Status = "sent"
	// StatusDelivered means the handset confirmed delivery.
	StatusDelivered Status = "delivered"
	// StatusFailed means delivery failed.
	StatusFailed Status = "failed"
	// StatusRejected means the provider rejected the message.
	StatusRejected Status = "rejected"
	// StatusExpired means the message expired before delivery.
	StatusExpired Status = "expired"
)

// DeliveryReport represents delivery-status feedback for one recipient.
//
// MessageID is the provider-assigned identifier used to reconcile
// asynchronous reports against previously sent messages. Reports without a
// MessageID cannot be reconciled.
type DeliveryReport struct {
	MessageID     string    `json:"message_id,omitempty"`
	Recipient     string    `json:"recipient"`
	Status        Status    `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`
	StatusTime    time.Time `json:"status_time,omitempty"`
	TimeQueued    time.Time `json:"time_queued,omitempty"`
	TimeDelivered time.Time `json:"time_delivered,omitempty"`
}

// NewDeliveryReport creates a delivery report for a recipient.
func NewDeliveryReport(recipient string, status Status) *DeliveryReport {
	return &DeliveryReport{
		Recipient:  recipient,
		Status:     status,
		StatusTime: time.Now(),
	}
}

// WithMessageID sets the provider-assigned message identifier.
func (r *DeliveryReport) WithMessageID(id string) *DeliveryReport {
	r.MessageID = id
	return r
}

// WithStatusMessage sets the human-readable status text.
func (r *DeliveryReport) WithStatusMessage(msg string) *DeliveryReport {
	r.StatusMessage = msg
	return r
}

// IsFinal reports whether the status is terminal. Terminal reports are still
// overwritten by later arrivals; this only classifies the status itself.
func (r *DeliveryReport) IsFinal() bool {
	switch r.Status {
	case StatusDelivered, StatusFailed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Result represents the normalized outcome of one gateway send or incoming
// call: one delivery report per recipient plus optional error text and the
// provider credit balance when the driver exposes it.
type Result struct {
	Reports        []*DeliveryReport `json:"reports"`
	Error          string            `json:"error,omitempty"`
	CreditsBalance *float64          `json:"credits_balance,omitempty"`
	CreditsUsed    *float64          `json:"credits_used,omitempty"`
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{Reports: make([]*DeliveryReport, 0)}
}

// AddReport appends a delivery report to the result.
func (r *Result) AddReport(report *DeliveryReport) *Result {
	r.Reports = append(r.Reports, report)
	return r
}

// SetError records an overall gateway error message.
func (r *Result) SetError(msg string) *Result {
	r.Error = msg
	return r
}

// SetCreditsBalance records the provider credit balance after the call.
func (r *Result) SetCreditsBalance(balance float64) *Result {
	r.CreditsBalance = &balance
	return r
}

// ReportFor returns the report for a recipient, nil when absent.
func (r *Result) ReportFor(recipient string) *DeliveryReport {
	for _, rep := range r.Reports {
		if rep.Recipient == recipient {
			return rep
		}
	}
	return nil
}
