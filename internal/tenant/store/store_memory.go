package store

import (
	"context"
	"sync"
	"time"

	"gatekeeper/internal/tenant/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// InMemoryStore keeps tenants in a map for unit tests. It intentionally
// favors clarity over performance.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
}

// NewInMemory creates an empty in-memory tenant store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tenants: make(map[id.TenantID]*models.Tenant)}
}

// Put seeds a tenant for tests.
func (s *InMemoryStore) Put(tenant *models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tenant
	s.tenants[tenant.ID] = &copied
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, tenantID id.TenantID, status models.TenantStatus, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	tenant.Status = status
	tenant.SuspensionReason = reason
	tenant.UpdatedAt = now
	return nil
}
