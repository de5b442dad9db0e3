// Package store persists tenant records in PostgreSQL, the source of truth
// for account status. The short-TTL status cache in the guard layer fronts
// these reads on the hot path.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gatekeeper/internal/tenant/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// PostgresStore is pure I/O; suspension policy lives in the guard service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `
		SELECT id, name, status, suspension_reason, plan, trial_ends_at,
		       last_payment_at, max_outbound_per_day, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	tenant, err := scanTenant(s.db.QueryRowContext(ctx, query, tenantID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return tenant, nil
}

// UpdateStatus transitions a tenant's status, recording the reason and
// bumping updated_at. Returns sentinel.ErrNotFound for unknown tenants.
func (s *PostgresStore) UpdateStatus(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, reason string, now time.Time) error {
	query := `
		UPDATE tenants
		SET status = $2, suspension_reason = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, tenantID.String(), string(status), nullIfEmpty(reason), now)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var (
		t           models.Tenant
		rawID       string
		status      string
		reason      sql.NullString
		plan        string
		trialEnds   sql.NullTime
		lastPayment sql.NullTime
		maxOutbound sql.NullInt64
	)
	err := row.Scan(&rawID, &t.Name, &status, &reason, &plan,
		&trialEnds, &lastPayment, &maxOutbound, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	tenantID, err := id.ParseTenantID(rawID)
	if err != nil {
		return nil, fmt.Errorf("tenant row holds invalid id %q: %w", rawID, err)
	}
	t.ID = tenantID

	t.Status, err = models.ParseTenantStatus(status)
	if err != nil {
		return nil, err
	}
	t.Plan = models.Plan(plan)
	if reason.Valid {
		t.SuspensionReason = reason.String
	}
	if trialEnds.Valid {
		t.TrialEndsAt = &trialEnds.Time
	}
	if lastPayment.Valid {
		t.LastPaymentAt = &lastPayment.Time
	}
	if maxOutbound.Valid {
		v := int(maxOutbound.Int64)
		t.MaxOutboundPerDay = &v
	}
	return &t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
