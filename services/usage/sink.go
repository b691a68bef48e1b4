package usage

import (
	"context"
	"sync"

	"github.com/upb/llm-gateway/models"
)

// Sink receives one record per request, denied or completed. Record must
// not block the request path; implementations buffer and flush on Close.
type Sink interface {
	Record(ctx context.Context, rec *models.UsageRecord) error
	Close() error
}

// MemorySink keeps records in memory for dev deployments and tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*models.UsageRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Records returns a copy of everything recorded so far.
func (s *MemorySink) Records() []*models.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.UsageRecord, len(s.records))
	copy(out, s.records)
	return out
}
