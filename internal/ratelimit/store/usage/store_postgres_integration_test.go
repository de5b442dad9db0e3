//go:build integration

package usage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/store/usage"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/testutil/containers"
)

type UsageStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *usage.PostgresStore
	tenantID id.TenantID
}

func TestUsageStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(UsageStoreSuite))
}

func (s *UsageStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.ApplyMigrations(context.Background(), s.T(), "../../../../migrations")
	s.store = usage.NewPostgres(s.postgres.DB)
}

func (s *UsageStoreSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *UsageStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "daily_usage", "tenants"))

	s.tenantID = id.TenantID(uuid.New())
	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, plan, max_outbound_per_day)
		VALUES ($1, 'Clinic', 'ACTIVE', 'starter', $2)
	`, s.tenantID.String(), 500)
	s.Require().NoError(err)
}

func (s *UsageStoreSuite) TestOutboundDailyLimit() {
	limit, ok, err := s.store.OutboundDailyLimit(context.Background(), s.tenantID)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(500, limit)
}

func (s *UsageStoreSuite) TestOutboundDailyLimit_NoOverride() {
	ctx := context.Background()
	other := id.TenantID(uuid.New())
	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, plan) VALUES ($1, 'NoCap', 'ACTIVE', 'free')
	`, other.String())
	s.Require().NoError(err)

	_, ok, err := s.store.OutboundDailyLimit(ctx, other)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *UsageStoreSuite) TestOutboundDailyLimit_UnknownTenant() {
	_, ok, err := s.store.OutboundDailyLimit(context.Background(), id.TenantID(uuid.New()))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *UsageStoreSuite) TestRecordDailyUsage_MonotonicUpsert() {
	ctx := context.Background()
	rec := models.DailyUsageRecord{
		TenantID: s.tenantID,
		Metric:   models.MetricOutboundMessages,
		Date:     "2026-03-10",
		Count:    40,
	}
	s.Require().NoError(s.store.RecordDailyUsage(ctx, rec))

	// Out-of-order replays never shrink the recorded count.
	rec.Count = 35
	s.Require().NoError(s.store.RecordDailyUsage(ctx, rec))

	var count int64
	err := s.postgres.DB.QueryRowContext(ctx,
		`SELECT count FROM daily_usage WHERE tenant_id = $1 AND metric = $2 AND date = $3`,
		s.tenantID.String(), string(models.MetricOutboundMessages), "2026-03-10",
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(int64(40), count)

	rec.Count = 60
	s.Require().NoError(s.store.RecordDailyUsage(ctx, rec))
	err = s.postgres.DB.QueryRowContext(ctx,
		`SELECT count FROM daily_usage WHERE tenant_id = $1 AND metric = $2 AND date = $3`,
		s.tenantID.String(), string(models.MetricOutboundMessages), "2026-03-10",
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(int64(60), count)
}
