// Package store provides the persistence boundary for messages and delivery
// reports, with in-memory and Redis-backed implementations.
package store

import (
	"context"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New(errors.ErrNotFound, "record not found")

// MessageStore persists message records by message id.
type MessageStore interface {
	// Save creates or overwrites a message record.
	Save(ctx context.Context, msg *message.Message) error

	// Get loads a message record, ErrNotFound when absent.
	Get(ctx context.Context, id string) (*message.Message, error)

	// Delete removes a message record. Deleting a missing record is not an
	// error; retention cleanup may race with explicit deletes.
	Delete(ctx context.Context, id string) error
}

// ReportStore persists delivery reports keyed by the provider-assigned
// message id. Concurrent saves for the same id are last-write-wins; backends
// must not interleave partial writes of a single record.
type ReportStore interface {
	// Save creates or overwrites the report for its MessageID.
	Save(ctx context.Context, rep *report.DeliveryReport) error

	// Get loads the report for a provider message id, ErrNotFound when absent.
	Get(ctx context.Context, messageID string) (*report.DeliveryReport, error)

	// Delete removes the report for a provider message id.
	Delete(ctx context.Context, messageID string) error
}
