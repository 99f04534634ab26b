// Package queue provides the durable work queue between message submission
// and gateway dispatch, with in-memory and Redis backends.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kart-io/smshub/pkg/message"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueEmpty is returned when dequeuing from an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrInvalidItem is returned when the item is nil or incomplete.
	ErrInvalidItem = errors.New("invalid queue item")
)

// Item is one unit of queued work: a persisted message to dispatch in a
// given direction. The message body itself lives in the message store; the
// queue only carries the reference, so a worker always dispatches the latest
// persisted state.
type Item struct {
	ID          string            `json:"id"`
	MessageID   string            `json:"message_id"`
	Direction   message.Direction `json:"direction"`
	RetryCount  int               `json:"retry_count"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewItem creates a queue item referencing a persisted message.
func NewItem(messageID string, dir message.Direction) *Item {
	now := time.Now()
	return &Item{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Direction: dir,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Delay schedules the item for later processing.
func (i *Item) Delay(at time.Time) *Item {
	i.ScheduledAt = &at
	return i
}

// Ready reports whether the item is due for processing.
func (i *Item) Ready(now time.Time) bool {
	return i.ScheduledAt == nil || !i.ScheduledAt.After(now)
}

// Queue is the interface queue backends implement.
type Queue interface {
	// Enqueue adds an item to the queue. Items with a future ScheduledAt
	// are held back until due.
	Enqueue(ctx context.Context, item *Item) error

	// Dequeue retrieves and removes the next due item, ErrQueueEmpty when
	// nothing is due.
	Dequeue(ctx context.Context) (*Item, error)

	// Size returns the number of items in the queue, including delayed ones.
	Size() int

	// Close closes the queue and releases resources.
	Close() error
}

// Handler processes one dequeued item.
type Handler func(ctx context.Context, item *Item) error
