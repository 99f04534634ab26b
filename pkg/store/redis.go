package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

// DefaultKeyPrefix namespaces smshub keys in a shared Redis instance.
const DefaultKeyPrefix = "smshub:"

// RedisMessageStore is a Redis-backed MessageStore. Records are stored as
// JSON under <prefix>msg:<id>. A single SET/GET per record gives the
// per-record atomicity the reconciliation path relies on.
type RedisMessageStore struct {
	client *redis.Client
	prefix string
}

// NewRedisMessageStore creates a message store on an existing Redis client.
func NewRedisMessageStore(client *redis.Client, prefix string) *RedisMessageStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisMessageStore{client: client, prefix: prefix}
}

func (s *RedisMessageStore) key(id string) string {
	return s.prefix + "msg:" + id
}

// Save creates or overwrites a message record.
func (s *RedisMessageStore) Save(ctx context.Context, msg *message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message %s: %w", msg.ID, err)
	}
	return s.client.Set(ctx, s.key(msg.ID), data, 0).Err()
}

// Get loads a message record.
func (s *RedisMessageStore) Get(ctx context.Context, id string) (*message.Message, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", id, err)
	}

	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to deserialize message %s: %w", id, err)
	}
	return &msg, nil
}

// Delete removes a message record.
func (s *RedisMessageStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// RedisReportStore is a Redis-backed ReportStore. Reports are stored as JSON
// under <prefix>report:<provider message id>.
type RedisReportStore struct {
	client *redis.Client
	prefix string
}

// NewRedisReportStore creates a report store on an existing Redis client.
func NewRedisReportStore(client *redis.Client, prefix string) *RedisReportStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisReportStore{client: client, prefix: prefix}
}

func (s *RedisReportStore) key(messageID string) string {
	return s.prefix + "report:" + messageID
}

// Save creates or overwrites the report for its MessageID.
func (s *RedisReportStore) Save(ctx context.Context, rep *report.DeliveryReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to serialize report %s: %w", rep.MessageID, err)
	}
	return s.client.Set(ctx, s.key(rep.MessageID), data, 0).Err()
}

// Get loads the report for a provider message id.
func (s *RedisReportStore) Get(ctx context.Context, messageID string) (*report.DeliveryReport, error) {
	data, err := s.client.Get(ctx, s.key(messageID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", messageID, err)
	}

	var rep report.DeliveryReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to deserialize report %s: %w", messageID, err)
	}
	return &rep, nil
}

// Delete removes the report for a provider message id.
func (s *RedisReportStore) Delete(ctx context.Context, messageID string) error {
	return s.client.Del(ctx, s.key(messageID)).Err()
}
