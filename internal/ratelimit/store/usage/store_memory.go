package usage

import (
	"context"
	"sync"

	"gatekeeper/internal/ratelimit/models"
	id "gatekeeper/pkg/domain"
)

// InMemoryStore keeps quota overrides and usage rows in maps for unit tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	overrides map[id.TenantID]int
	usage     map[string]models.DailyUsageRecord
}

// NewInMemory creates an empty in-memory usage store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		overrides: make(map[id.TenantID]int),
		usage:     make(map[string]models.DailyUsageRecord),
	}
}

// SetOverride configures a tenant's daily cap for tests.
func (s *InMemoryStore) SetOverride(tenantID id.TenantID, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[tenantID] = limit
}

func (s *InMemoryStore) OutboundDailyLimit(_ context.Context, tenantID id.TenantID) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit, ok := s.overrides[tenantID]
	return limit, ok, nil
}

func (s *InMemoryStore) RecordDailyUsage(_ context.Context, rec models.DailyUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.TenantID.String() + "|" + string(rec.Metric) + "|" + rec.Date
	if existing, ok := s.usage[key]; ok && existing.Count > rec.Count {
		return nil
	}
	s.usage[key] = rec
	return nil
}

// Usage returns the recorded row for assertions.
func (s *InMemoryStore) Usage(tenantID id.TenantID, metric models.Metric, date string) (models.DailyUsageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.usage[tenantID.String()+"|"+string(metric)+"|"+date]
	return rec, ok
}
