package report

import "time"

// Receipt status constants.
const (
	ReceiptStatusSuccess = "success"
	ReceiptStatusPartial = "partial"
	ReceiptStatusFailed  = "failed"
	ReceiptStatusPending = "pending"
)

// RecipientResult represents the outcome of sending to a single recipient
// through a single gateway.
type RecipientResult struct {
	Gateway   string    `json:"gateway"`
	Recipient string    `json:"recipient"`
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Receipt aggregates per-recipient outcomes for one logical submission. A
// single submitted message may fan out across gateways and chunks, so callers
// get success and failure counts rather than a single pass/fail.
type Receipt struct {
	SubmissionID string            `json:"submission_id"`
	Status       string            `json:"status"`
	Results      []RecipientResult `json:"results"`
	Successful   int               `json:"successful"`
	Failed       int               `json:"failed"`
	Total        int               `json:"total"`
	Timestamp    time.Time         `json:"timestamp"`
}

// NewReceipt creates a pending receipt for a submission.
func NewReceipt(submissionID string) *Receipt {
	return &Receipt{
		SubmissionID: submissionID,
		Status:       ReceiptStatusPending,
		Results:      make([]RecipientResult, 0),
		Timestamp:    time.Now(),
	}
}

// AddResult adds a recipient result and updates counters and status.
func (r *Receipt) AddResult(result RecipientResult) {
	r.Results = append(r.Results, result)
	r.Total = len(r.Results)

	r.Successful = 0
	r.Failed = 0
	for _, res := range r.Results {
		if res.Success {
			r.Successful++
		} else {
			r.Failed++
		}
	}
	r.updateStatus()
}

func (r *Receipt) updateStatus() {
	switch {
	case r.Total == 0:
		r.Status = ReceiptStatusPending
	case r.Failed == 0:
		r.Status = ReceiptStatusSuccess
	case r.Successful == 0:
		r.Status = ReceiptStatusFailed
	default:
		r.Status = ReceiptStatusPartial
	}
}

// IsSuccess returns true if all deliveries were accepted.
func (r *Receipt) IsSuccess() bool {
	return r.Status == ReceiptStatusSuccess
}

// IsPartial returns true if some deliveries were accepted.
func (r *Receipt) IsPartial() bool {
	return r.Status == ReceiptStatusPartial
}

// Errors returns all error messages from failed results.
func (r *Receipt) Errors() []string {
	errs := make([]string, 0, r.Failed)
	for _, result := range r.Results {
		if !result.Success && result.Error != "" {
			errs = append(errs, result.Error)
		}
	}
	return errs
}
