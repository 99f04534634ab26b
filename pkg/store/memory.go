package store

import (
	"context"
	"sync"

	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

// MemoryMessageStore is an in-memory MessageStore. Records are deep-copied on
// the way in and out so callers never share mutable state with the store.
type MemoryMessageStore struct {
	messages map[string]*message.Message
	mu       sync.RWMutex
}

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string]*message.Message)}
}

// Save creates or overwrites a message record.
func (s *MemoryMessageStore) Save(_ context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := msg.Clone()
	stored.ID = msg.ID
	s.messages[msg.ID] = stored
	return nil
}

// Get loads a message record.
func (s *MemoryMessageStore) Get(_ context.Context, id string) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := msg.Clone()
	out.ID = msg.ID
	return out, nil
}

// Delete removes a message record.
func (s *MemoryMessageStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
	return nil
}

// Len returns the number of stored messages.
func (s *MemoryMessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// MemoryReportStore is an in-memory ReportStore.
type MemoryReportStore struct {
	reports map[string]*report.DeliveryReport
	mu      sync.RWMutex
}

// NewMemoryReportStore creates an empty in-memory report store.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: make(map[string]*report.DeliveryReport)}
}

// Save creates or overwrites the report for its MessageID.
func (s *MemoryReportStore) Save(_ context.Context, rep *report.DeliveryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rep
	s.reports[rep.MessageID] = &stored
	return nil
}

// Get loads the report for a provider message id.
func (s *MemoryReportStore) Get(_ context.Context, messageID string) (*report.DeliveryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reports[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rep
	return &out, nil
}

// Delete removes the report for a provider message id.
func (s *MemoryReportStore) Delete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, messageID)
	return nil
}

// Len returns the number of stored reports.
func (s *MemoryReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
