package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/smshub/pkg/message"
)

func TestMemoryQueue_RoundTrip(t *testing.T) {
	q := NewMemoryQueue(10, nil)
	defer q.Close()

	item := NewItem("msg-1", message.DirectionOutgoing)
	require.NoError(t, q.Enqueue(context.Background(), item))
	assert.Equal(t, 1, q.Size())

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "msg-1", got.MessageID)
	assert.Equal(t, message.DirectionOutgoing, got.Direction)
	assert.Equal(t, 0, q.Size())
}

func TestMemoryQueue_EmptyAndInvalid(t *testing.T) {
	q := NewMemoryQueue(10, nil)
	defer q.Close()

	_, err := q.Dequeue(context.Background())
	assert.Equal(t, ErrQueueEmpty, err)

	assert.Equal(t, ErrInvalidItem, q.Enqueue(context.Background(), nil))
	assert.Equal(t, ErrInvalidItem, q.Enqueue(context.Background(), &Item{ID: "no-message"}))
}

func TestMemoryQueue_Full(t *testing.T) {
	q := NewMemoryQueue(1, nil)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), NewItem("msg-1", message.DirectionOutgoing)))
	err := q.Enqueue(context.Background(), NewItem("msg-2", message.DirectionOutgoing))
	assert.Equal(t, ErrQueueFull, err)
}

func TestMemoryQueue_DelayedItemsCountAgainstCapacity(t *testing.T) {
	q := NewMemoryQueue(2, nil)
	defer q.Close()

	due := time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(context.Background(), NewItem("msg-1", message.DirectionOutgoing).Delay(due)))
	require.NoError(t, q.Enqueue(context.Background(), NewItem("msg-2", message.DirectionOutgoing).Delay(due)))

	err := q.Enqueue(context.Background(), NewItem("msg-3", message.DirectionOutgoing).Delay(due))
	assert.Equal(t, ErrQueueFull, err)
	assert.Equal(t, 2, q.Size())
}

func TestMemoryQueue_DequeueDuringClose(t *testing.T) {
	// Mimics the window where Close has already closed the channel but a
	// dequeuer passed the closed-flag check beforehand.
	q := NewMemoryQueue(1, nil).(*memoryQueue)
	close(q.stopCh)
	q.wg.Wait()
	close(q.items)

	item, err := q.Dequeue(context.Background())
	assert.Nil(t, item)
	assert.Equal(t, ErrQueueClosed, err)
}

func TestMemoryQueue_DelayedItemHeldBack(t *testing.T) {
	q := NewMemoryQueue(10, nil)
	defer q.Close()

	item := NewItem("msg-1", message.DirectionOutgoing).Delay(time.Now().Add(200 * time.Millisecond))
	require.NoError(t, q.Enqueue(context.Background(), item))
	assert.Equal(t, 1, q.Size())

	_, err := q.Dequeue(context.Background())
	assert.Equal(t, ErrQueueEmpty, err)

	// The mover releases the item once due.
	require.Eventually(t, func() bool {
		got, err := q.Dequeue(context.Background())
		return err == nil && got.MessageID == "msg-1"
	}, 2*time.Second, 50*time.Millisecond)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(10, nil)
	require.NoError(t, q.Close())

	assert.Equal(t, ErrQueueClosed, q.Enqueue(context.Background(), NewItem("msg-1", message.DirectionOutgoing)))
	_, err := q.Dequeue(context.Background())
	assert.Equal(t, ErrQueueClosed, err)

	// Closing twice is harmless.
	assert.NoError(t, q.Close())
}

func TestItem_Ready(t *testing.T) {
	now := time.Now()

	item := NewItem("msg-1", message.DirectionOutgoing)
	assert.True(t, item.Ready(now))

	item.Delay(now.Add(time.Minute))
	assert.False(t, item.Ready(now))
	assert.True(t, item.Ready(now.Add(2*time.Minute)))
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.True(t, policy.ShouldRetry(0))
	assert.True(t, policy.ShouldRetry(2))
	assert.False(t, policy.ShouldRetry(3))
	assert.False(t, policy.ShouldRetry(10))
}
