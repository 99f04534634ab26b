package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/logger"
)

// WorkerPool runs a fixed number of workers over a queue. Each worker
// processes one item at a time; items are independent so there is no
// ordering guarantee across workers.
//
// Retryable handler failures re-enqueue the item with backoff until the
// retry policy is exhausted, then the item goes to the dead-letter queue
// when one is configured, or is dropped with a log line.
type WorkerPool struct {
	queue      Queue
	handler    Handler
	workers    int
	retry      RetryPolicy
	deadLetter Queue
	processed  int64
	failed     int64
	running    int32
	stopCh     chan struct{}
	wg         sync.WaitGroup
	logger     logger.Logger
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(q Queue, handler Handler, workers int, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.Discard
	}
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		queue:   q,
		handler: handler,
		workers: workers,
		retry:   DefaultRetryPolicy(),
		stopCh:  make(chan struct{}),
		logger:  log,
	}
}

// SetRetryPolicy replaces the retry policy. Only valid before Start.
func (p *WorkerPool) SetRetryPolicy(policy RetryPolicy) {
	p.retry = policy
}

// SetDeadLetterQueue installs a queue for items that exhausted their retries.
func (p *WorkerPool) SetDeadLetterQueue(q Queue) {
	p.deadLetter = q
}

// Start launches the workers.
func (p *WorkerPool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.logger.Info("Worker pool started", "workers", p.workers)
	return nil
}

// Stop stops all workers and waits for in-flight items to finish.
func (p *WorkerPool) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return nil
	}
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped",
		"processed", atomic.LoadInt64(&p.processed),
		"failed", atomic.LoadInt64(&p.failed))
	return nil
}

// Processed returns the number of successfully processed items.
func (p *WorkerPool) Processed() int64 {
	return atomic.LoadInt64(&p.processed)
}

// Failed returns the number of permanently failed items.
func (p *WorkerPool) Failed() int64 {
	return atomic.LoadInt64(&p.failed)
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		item, err := p.queue.Dequeue(ctx)
		if err == ErrQueueEmpty {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			if err == ErrQueueClosed || err == context.Canceled {
				return
			}
			p.logger.Error("Dequeue failed", "worker", id, "error", err)
			continue
		}
		if item == nil {
			continue
		}

		p.process(ctx, item, id)
	}
}

func (p *WorkerPool) process(ctx context.Context, item *Item, worker int) {
	err := p.handler(ctx, item)
	if err == nil {
		atomic.AddInt64(&p.processed, 1)
		return
	}

	if errors.IsRetryableError(err) && p.retry.ShouldRetry(item.RetryCount) {
		item.RetryCount++
		due := time.Now().Add(p.retry.NextDelay(item.RetryCount))
		item.Delay(due)

		if enqErr := p.queue.Enqueue(ctx, item); enqErr != nil {
			p.logger.Error("Failed to requeue item",
				"worker", worker, "item", item.ID, "error", enqErr)
			p.fail(ctx, item, err)
			return
		}

		p.logger.Warn("Item requeued for retry",
			"worker", worker, "item", item.ID,
			"attempt", item.RetryCount, "error", err)
		return
	}

	p.fail(ctx, item, err)
}

func (p *WorkerPool) fail(ctx context.Context, item *Item, cause error) {
	atomic.AddInt64(&p.failed, 1)

	if p.deadLetter != nil {
		item.ScheduledAt = nil
		if err := p.deadLetter.Enqueue(ctx, item); err != nil {
			p.logger.Error("Failed to move item to dead letter queue",
				"item", item.ID, "error", err)
		}
	}

	p.logger.Error("Item permanently failed",
		"item", item.ID, "message", item.MessageID,
		"retries", item.RetryCount, "error", cause)
}
