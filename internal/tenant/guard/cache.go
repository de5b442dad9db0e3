package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/tenant/models"
	id "gatekeeper/pkg/domain"
)

// cachedStatus is the snapshot written to the counter store. It carries just
// enough to make the admission decision without a relational round trip:
// the status, the stored reason for rejections, and the trial deadline so
// trial expiry is caught even on cache hits.
type cachedStatus struct {
	Status      models.TenantStatus `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	TrialEndsAt *time.Time          `json:"trial_ends_at,omitempty"`
}

// statusCache is a read-through cache for tenant status. Writers never update
// it in place: status-changing operations invalidate and let the next reader
// refetch, which avoids staleness races between concurrent readers.
type statusCache struct {
	counters counter.Store
	ttl      time.Duration
	logger   *slog.Logger
}

func cacheKey(tenantID id.TenantID) string {
	return "tenant:status:" + tenantID.String()
}

// get returns the cached snapshot, if any. Cache errors are reported as a
// miss with the error so callers can decide their failure policy.
func (c *statusCache) get(ctx context.Context, tenantID id.TenantID) (*cachedStatus, error) {
	raw, ok, err := c.counters.Get(ctx, cacheKey(tenantID))
	if err != nil || !ok {
		return nil, err
	}
	var cached cachedStatus
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		// A corrupt entry behaves like a miss; the refetch overwrites it.
		c.logger.Warn("corrupt tenant status cache entry", "tenant_id", tenantID, "error", err)
		return nil, nil
	}
	if !cached.Status.IsValid() {
		c.logger.Warn("invalid status in tenant cache entry", "tenant_id", tenantID, "status", cached.Status)
		return nil, nil
	}
	return &cached, nil
}

// fill writes the snapshot best-effort and detached: a cache write failure
// must never block or fail the admission decision.
func (c *statusCache) fill(ctx context.Context, tenantID id.TenantID, snapshot cachedStatus) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("failed to encode tenant status snapshot", "tenant_id", tenantID, "error", err)
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		fillCtx, cancel := context.WithTimeout(detached, 2*time.Second)
		defer cancel()
		if err := c.counters.Set(fillCtx, cacheKey(tenantID), string(payload), c.ttl); err != nil {
			c.logger.Warn("failed to fill tenant status cache", "tenant_id", tenantID, "error", err)
		}
	}()
}

// invalidate drops the cache entry after a status-changing write.
func (c *statusCache) invalidate(ctx context.Context, tenantID id.TenantID) error {
	return c.counters.Del(ctx, cacheKey(tenantID))
}
