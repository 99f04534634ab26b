package queue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/smshub/pkg/logger"
)

// memoryQueue implements an in-memory queue with delayed item support.
type memoryQueue struct {
	items    chan *Item
	delayed  *delayHeap
	capacity int
	closed   int32
	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
	logger   logger.Logger
}

// NewMemoryQueue creates a new in-memory queue.
func NewMemoryQueue(capacity int, log logger.Logger) Queue {
	if log == nil {
		log = logger.Discard
	}
	if capacity <= 0 {
		capacity = 1024
	}

	q := &memoryQueue{
		items:    make(chan *Item, capacity),
		delayed:  newDelayHeap(),
		capacity: capacity,
		stopCh:   make(chan struct{}),
		logger:   log,
	}

	q.wg.Add(1)
	go q.moveDueItems()

	log.Info("Memory queue created", "capacity", capacity)
	return q
}

// Enqueue adds an item to the queue.
func (q *memoryQueue) Enqueue(ctx context.Context, item *Item) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	if item == nil || item.MessageID == "" {
		return ErrInvalidItem
	}

	now := time.Now()
	item.UpdatedAt = now

	if !item.Ready(now) {
		q.mu.Lock()
		// Capacity bounds ready and delayed items together, otherwise
		// scheduled items could grow without limit.
		if len(q.items)+q.delayed.Len() >= q.capacity {
			q.mu.Unlock()
			q.logger.Error("Queue is full", "capacity", q.capacity)
			return ErrQueueFull
		}
		heap.Push(q.delayed, item)
		q.mu.Unlock()
		q.logger.Debug("Item enqueued for delayed processing",
			"item", item.ID, "scheduledAt", item.ScheduledAt)
		return nil
	}

	select {
	case q.items <- item:
		q.logger.Debug("Item enqueued", "item", item.ID, "message", item.MessageID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		q.logger.Error("Queue is full", "capacity", q.capacity)
		return ErrQueueFull
	}
}

// Dequeue retrieves and removes the next due item.
func (q *memoryQueue) Dequeue(ctx context.Context) (*Item, error) {
	if atomic.LoadInt32(&q.closed) == 1 {
		return nil, ErrQueueClosed
	}

	select {
	case item, ok := <-q.items:
		// Close can win the race after the flag check above; a receive from
		// the closed channel must not surface as a nil item.
		if !ok {
			return nil, ErrQueueClosed
		}
		q.logger.Debug("Item dequeued", "item", item.ID)
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, ErrQueueEmpty
	}
}

// Size returns the number of items in the queue, including delayed ones.
func (q *memoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.delayed.Len()
}

// Close closes the queue.
func (q *memoryQueue) Close() error {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return nil
	}

	close(q.stopCh)
	q.wg.Wait()
	close(q.items)

	q.logger.Info("Memory queue closed")
	return nil
}

// moveDueItems moves delayed items into the main channel once they are due.
func (q *memoryQueue) moveDueItems() {
	defer q.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.releaseDue(time.Now())
		}
	}
}

func (q *memoryQueue) releaseDue(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.delayed.Len() > 0 {
		item := (*q.delayed)[0]
		if !item.Ready(now) {
			break
		}

		heap.Pop(q.delayed)
		item.ScheduledAt = nil

		select {
		case q.items <- item:
			q.logger.Debug("Delayed item ready for processing", "item", item.ID)
		default:
			// Main channel is full, put it back and try next tick.
			item.ScheduledAt = &now
			heap.Push(q.delayed, item)
			return
		}
	}
}

// delayHeap orders items by scheduled time, earliest first.
type delayHeap []*Item

func newDelayHeap() *delayHeap {
	h := &delayHeap{}
	heap.Init(h)
	return h
}

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	if h[i].ScheduledAt == nil {
		return true
	}
	if h[j].ScheduledAt == nil {
		return false
	}
	return h[i].ScheduledAt.Before(*h[j].ScheduledAt)
}

func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayHeap) Push(x interface{}) {
	*h = append(*h, x.(*Item))
}

func (h *delayHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
