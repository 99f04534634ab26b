// Package reconcile matches asynchronous delivery reports to previously
// dispatched messages.
package reconcile

import (
	"context"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/report"
	"github.com/kart-io/smshub/pkg/store"
)

// Outcome summarizes one reconciliation batch.
type Outcome struct {
	Updated int `json:"updated"`
	Dropped int `json:"dropped"`
}

// Reconciler applies incoming delivery reports to the report store.
//
// Updates are last-write-wins by arrival order and idempotent: applying the
// same report twice leaves the stored record unchanged. Reports for unknown
// message ids are dropped, not failed — providers may report for messages
// this site never sent or that retention already purged.
type Reconciler struct {
	reports store.ReportStore
	logger  logger.Logger
}

// NewReconciler creates a reconciler over a report store.
func NewReconciler(reports store.ReportStore, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Discard
	}
	return &Reconciler{reports: reports, logger: log}
}

// Reconcile applies a batch of reports. Unreconcilable reports never fail the
// batch; only store failures are returned, aggregated, after every report has
// been attempted.
func (r *Reconciler) Reconcile(ctx context.Context, reports []*report.DeliveryReport) (*Outcome, error) {
	outcome := &Outcome{}
	errs := errors.NewMultiError()

	for _, incoming := range reports {
		if incoming.MessageID == "" {
			outcome.Dropped++
			r.logger.Warn("Dropping delivery report without message id",
				"recipient", incoming.Recipient, "status", incoming.Status)
			continue
		}

		existing, err := r.reports.Get(ctx, incoming.MessageID)
		if err == store.ErrNotFound {
			outcome.Dropped++
			r.logger.Info("Dropping delivery report for unknown message",
				"messageID", incoming.MessageID, "status", incoming.Status)
			continue
		}
		if err != nil {
			errs.Add(err)
			continue
		}

		r.apply(existing, incoming)
		if err := r.reports.Save(ctx, existing); err != nil {
			errs.Add(err)
			continue
		}

		outcome.Updated++
		r.logger.Debug("Delivery report reconciled",
			"messageID", incoming.MessageID, "status", incoming.Status)
	}

	return outcome, errs.ErrorOrNil()
}

// apply overwrites the stored report's status fields from the incoming one.
// Optional timestamps only overwrite when the incoming report carries them.
func (r *Reconciler) apply(existing, incoming *report.DeliveryReport) {
	existing.Status = incoming.Status
	existing.StatusMessage = incoming.StatusMessage
	existing.StatusTime = incoming.StatusTime
	if incoming.Recipient != "" {
		existing.Recipient = incoming.Recipient
	}
	if !incoming.TimeQueued.IsZero() {
		existing.TimeQueued = incoming.TimeQueued
	}
	if !incoming.TimeDelivered.IsZero() {
		existing.TimeDelivered = incoming.TimeDelivered
	}
}
