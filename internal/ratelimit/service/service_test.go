package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/store/usage"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/requestcontext"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		DefaultOutboundPerDay:  1000,
		InboundPerMinute:       30,
		APIRequestsPerMinute:   120,
		ApproachingThresholdPc: 80,
	}
}

func newTestService(t *testing.T) (*Service, *usage.InMemoryStore) {
	t.Helper()
	usageStore := usage.NewInMemory()
	svc, err := New(counter.NewInMemory(), usageStore, testConfig(), WithUsageStore(usageStore))
	require.NoError(t, err)
	return svc, usageStore
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestCheckOutboundMessageLimit_TenantOverride(t *testing.T) {
	svc, usageStore := newTestService(t)
	tenantID := id.TenantID(uuid.New())
	usageStore.SetOverride(tenantID, 250)

	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	ctx := at(noon)

	// Consume the full quota.
	for i := 0; i < 250; i++ {
		result, err := svc.CheckOutboundMessageLimit(ctx, tenantID)
		require.NoError(t, err)
		require.True(t, result.Allowed, "send %d should be allowed", i+1)
		require.NoError(t, svc.IncrementOutboundMessages(ctx, tenantID))
	}

	// The 251st is rejected with remaining=0 and reset at next local midnight.
	result, err := svc.CheckOutboundMessageLimit(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 250, result.Limit)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local), result.ResetAt)
	assert.Equal(t, 12*3600, result.RetryAfter)
}

func TestCheckOutboundMessageLimit_DefaultWhenNoOverride(t *testing.T) {
	svc, _ := newTestService(t)
	tenantID := id.TenantID(uuid.New())

	result, err := svc.CheckOutboundMessageLimit(at(time.Now()), tenantID)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1000, result.Limit)
	assert.Equal(t, 1000, result.Remaining)
}

func TestOutboundCounter_ResetsAtMidnight(t *testing.T) {
	svc, usageStore := newTestService(t)
	tenantID := id.TenantID(uuid.New())
	usageStore.SetOverride(tenantID, 10)

	lateNight := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	for i := 0; i < 10; i++ {
		require.NoError(t, svc.IncrementOutboundMessages(at(lateNight), tenantID))
	}
	result, err := svc.CheckOutboundMessageLimit(at(lateNight), tenantID)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// Past midnight the date-keyed counter starts fresh.
	nextDay := time.Date(2026, 3, 2, 0, 0, 1, 0, time.Local)
	result, err = svc.CheckOutboundMessageLimit(at(nextDay), tenantID)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 10, result.Remaining)
}

func TestIncrementOutboundMessages_RecordsUsageDurably(t *testing.T) {
	svc, usageStore := newTestService(t)
	tenantID := id.TenantID(uuid.New())

	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, svc.IncrementOutboundMessages(at(noon), tenantID))
	require.NoError(t, svc.IncrementOutboundMessages(at(noon), tenantID))

	// The analytics upsert is detached from the request.
	assert.Eventually(t, func() bool {
		rec, ok := usageStore.Usage(tenantID, models.MetricOutboundMessages, "2026-03-01")
		return ok && rec.Count == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCheckInboundMessageLimit_ReadDoesNotConsume(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := at(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		result, err := svc.CheckInboundMessageLimit(ctx, "+15550001111")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 30, result.Remaining, "check alone must not consume units")
	}
}

func TestCheckInboundMessageLimit_RejectsOverWindow(t *testing.T) {
	svc, _ := newTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 30; i++ {
		require.NoError(t, svc.IncrementInboundMessages(at(base), "+15550001111"))
	}

	result, err := svc.CheckInboundMessageLimit(at(base.Add(10*time.Second)), "+15550001111")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 50, result.RetryAfter, "retry hint is the window's remaining TTL")

	// A different phone is unaffected.
	other, err := svc.CheckInboundMessageLimit(at(base), "+15550002222")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestCheckAPIRequestLimit_ConsumesAtomically(t *testing.T) {
	svc, _ := newTestService(t)
	tenantID := id.TenantID(uuid.New())
	ctx := at(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 120; i++ {
		result, err := svc.CheckAPIRequestLimit(ctx, tenantID)
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 120-(i+1), result.Remaining)
	}

	result, err := svc.CheckAPIRequestLimit(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Positive(t, result.RetryAfter)
}

func TestCheckAPIRequestLimit_WindowExpiryReadmits(t *testing.T) {
	svc, _ := newTestService(t)
	tenantID := id.TenantID(uuid.New())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 121; i++ {
		_, err := svc.CheckAPIRequestLimit(at(base), tenantID)
		require.NoError(t, err)
	}

	result, err := svc.CheckAPIRequestLimit(at(base.Add(61*time.Second)), tenantID)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 119, result.Remaining)
}

func TestGetUsageStats(t *testing.T) {
	svc, usageStore := newTestService(t)
	tenantID := id.TenantID(uuid.New())
	usageStore.SetOverride(tenantID, 100)

	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < 85; i++ {
		require.NoError(t, svc.IncrementOutboundMessages(at(noon), tenantID))
	}

	stats, err := svc.GetUsageStats(at(noon), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 85, stats.OutboundUsed)
	assert.Equal(t, 100, stats.Limit)
	assert.Equal(t, 15, stats.Remaining)
	assert.Equal(t, 85, stats.PercentUsed)
	assert.Equal(t, "2026-03-01", stats.Date)

	approaching, err := svc.IsApproachingLimit(at(noon), tenantID, 80)
	require.NoError(t, err)
	assert.True(t, approaching)

	approaching, err = svc.IsApproachingLimit(at(noon), tenantID, 90)
	require.NoError(t, err)
	assert.False(t, approaching)
}

func TestService_RejectsNilTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CheckOutboundMessageLimit(ctx, id.TenantID{})
	assert.Error(t, err)
	_, err = svc.CheckAPIRequestLimit(ctx, id.TenantID{})
	assert.Error(t, err)
	assert.Error(t, svc.IncrementOutboundMessages(ctx, id.TenantID{}))
}
