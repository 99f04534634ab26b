package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/smshub/pkg/logger"
)

// RedisOptions contains Redis-specific queue configuration.
type RedisOptions struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB           int           `json:"db" yaml:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

// redisQueue implements a Redis-backed queue. Due items live in a list,
// delayed items in a sorted set scored by their due time; a background
// goroutine moves due items over.
type redisQueue struct {
	client    *redis.Client
	mainKey   string
	delayKey  string
	capacity  int
	closed    int32
	stopCh    chan struct{}
	wg        sync.WaitGroup
	logger    logger.Logger
	ownClient bool
}

// NewRedisQueue creates a Redis-backed queue and verifies connectivity.
func NewRedisQueue(opts *RedisOptions, capacity int, log logger.Logger) (Queue, error) {
	if log == nil {
		log = logger.Discard
	}
	if opts == nil {
		return nil, errors.New("redis options cannot be nil")
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "smshub:queue:"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := newRedisQueueWithClient(client, opts.KeyPrefix, capacity, log)
	q.(*redisQueue).ownClient = true

	log.Info("Redis queue created", "addr", opts.Addr, "keyPrefix", opts.KeyPrefix)
	return q, nil
}

// NewRedisQueueWithClient creates a Redis-backed queue on an existing client.
// The caller keeps ownership of the client.
func NewRedisQueueWithClient(client *redis.Client, keyPrefix string, capacity int, log logger.Logger) Queue {
	if log == nil {
		log = logger.Discard
	}
	if keyPrefix == "" {
		keyPrefix = "smshub:queue:"
	}
	return newRedisQueueWithClient(client, keyPrefix, capacity, log)
}

func newRedisQueueWithClient(client *redis.Client, keyPrefix string, capacity int, log logger.Logger) Queue {
	q := &redisQueue{
		client:   client,
		mainKey:  keyPrefix + "main",
		delayKey: keyPrefix + "delayed",
		capacity: capacity,
		stopCh:   make(chan struct{}),
		logger:   log,
	}

	q.wg.Add(1)
	go q.moveDueItems()
	return q
}

// Enqueue adds an item to the queue.
func (q *redisQueue) Enqueue(ctx context.Context, item *Item) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	if item == nil || item.MessageID == "" {
		return ErrInvalidItem
	}

	now := time.Now()
	item.UpdatedAt = now

	if q.capacity > 0 && q.Size() >= q.capacity {
		return ErrQueueFull
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to serialize queue item: %w", err)
	}

	if !item.Ready(now) {
		score := float64(item.ScheduledAt.UnixMilli())
		if err := q.client.ZAdd(ctx, q.delayKey, redis.Z{Score: score, Member: data}).Err(); err != nil {
			return fmt.Errorf("failed to enqueue delayed item: %w", err)
		}
		q.logger.Debug("Item enqueued for delayed processing", "item", item.ID)
		return nil
	}

	if err := q.client.RPush(ctx, q.mainKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	q.logger.Debug("Item enqueued", "item", item.ID, "message", item.MessageID)
	return nil
}

// Dequeue retrieves and removes the next due item.
func (q *redisQueue) Dequeue(ctx context.Context) (*Item, error) {
	if atomic.LoadInt32(&q.closed) == 1 {
		return nil, ErrQueueClosed
	}

	data, err := q.client.LPop(ctx, q.mainKey).Bytes()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue item: %w", err)
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to deserialize queue item: %w", err)
	}

	q.logger.Debug("Item dequeued", "item", item.ID)
	return &item, nil
}

// Size returns the number of items in the queue, including delayed ones.
func (q *redisQueue) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	main, err := q.client.LLen(ctx, q.mainKey).Result()
	if err != nil {
		return 0
	}
	delayed, err := q.client.ZCard(ctx, q.delayKey).Result()
	if err != nil {
		return int(main)
	}
	return int(main + delayed)
}

// Close closes the queue.
func (q *redisQueue) Close() error {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return nil
	}

	close(q.stopCh)
	q.wg.Wait()

	if q.ownClient {
		return q.client.Close()
	}
	return nil
}

// moveDueItems moves due delayed items from the sorted set to the main list.
func (q *redisQueue) moveDueItems() {
	defer q.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.releaseDue()
		}
	}
}

func (q *redisQueue) releaseDue() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, q.delayKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil || len(members) == 0 {
		return
	}

	for _, member := range members {
		// Remove first so two movers never push the same item twice.
		removed, err := q.client.ZRem(ctx, q.delayKey, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.mainKey, member).Err(); err != nil {
			q.logger.Error("Failed to move due item", "error", err)
		}
	}
}
