// Package usage persists quota overrides and daily usage analytics in
// PostgreSQL. The counters that drive admission decisions live in the shared
// counter store; this package only mirrors consumption durably and serves
// per-tenant configuration reads.
package usage

import (
	"context"
	"database/sql"
	"fmt"

	"gatekeeper/internal/ratelimit/models"
	id "gatekeeper/pkg/domain"
)

// PostgresStore is pure I/O: limit fallbacks and window math belong in the
// service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed usage store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OutboundDailyLimit reads the tenant's configured daily cap.
// ok is false when the tenant has no override (NULL column or missing row).
func (s *PostgresStore) OutboundDailyLimit(ctx context.Context, tenantID id.TenantID) (int, bool, error) {
	query := `
		SELECT max_outbound_per_day
		FROM tenants
		WHERE id = $1
	`
	var limit sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, tenantID.String()).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get outbound daily limit: %w", err)
	}
	if !limit.Valid {
		return 0, false, nil
	}
	return int(limit.Int64), true, nil
}

// RecordDailyUsage upserts the analytics row for (tenant, metric, date).
// Idempotent: replaying the same counter value is a no-op overwrite.
func (s *PostgresStore) RecordDailyUsage(ctx context.Context, rec models.DailyUsageRecord) error {
	query := `
		INSERT INTO daily_usage (tenant_id, metric, date, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, metric, date) DO UPDATE SET
			count = GREATEST(daily_usage.count, EXCLUDED.count)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.TenantID.String(),
		string(rec.Metric),
		rec.Date,
		rec.Count,
	)
	if err != nil {
		return fmt.Errorf("record daily usage: %w", err)
	}
	return nil
}
