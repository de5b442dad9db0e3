// Package guard gates tenant-scoped operations on account status. It fronts
// the relational tenant store with a short-TTL status cache and applies two
// auto-suspension policies: trial expiry and payment overdue.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/tenant/metrics"
	"gatekeeper/internal/tenant/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
	"gatekeeper/pkg/requestcontext"
)

// Suspension reasons written to the tenant record by the automatic policies.
// SuspendedMessage matches on these substrings, so admin-supplied reasons
// that mention "trial" or "payment" pick the matching auto-reply too.
const (
	ReasonTrialExpired   = "trial expired"
	ReasonPaymentOverdue = "payment overdue"
)

// TenantStore is the relational source of truth for tenant records.
type TenantStore interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	UpdateStatus(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, reason string, now time.Time) error
}

// Guard decides whether a tenant may perform operations right now.
type Guard struct {
	tenants TenantStore
	cache   *statusCache
	cfg     config.TenantConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
			g.cache.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// New constructs a Guard backed by the given tenant store and counter store.
func New(tenants TenantStore, counters counter.Store, cfg config.TenantConfig, opts ...Option) (*Guard, error) {
	if tenants == nil {
		return nil, fmt.Errorf("tenant store is required")
	}
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}

	g := &Guard{
		tenants: tenants,
		cache: &statusCache{
			counters: counters,
			ttl:      cfg.StatusCacheTTL,
			logger:   slog.Default(),
		},
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CheckTenantStatus reports whether the tenant may operate. Reads are
// cache-first; a miss falls through to the relational store and fills the
// cache best-effort. An expired trial is suspended write-through before the
// result is returned, so the very first check past the deadline already
// rejects. Unknown tenants are treated as BANNED.
func (g *Guard) CheckTenantStatus(ctx context.Context, tenantID id.TenantID) (*models.StatusResult, error) {
	cached, err := g.cache.get(ctx, tenantID)
	if err != nil {
		// Cache trouble degrades to a relational read, not a rejection.
		g.logger.Warn("tenant status cache read failed", "tenant_id", tenantID, "error", err)
	}
	if cached != nil {
		g.metrics.ObserveCacheLookup("hit")
		if cached.Status == models.StatusTrial && cached.TrialEndsAt != nil &&
			requestcontext.Now(ctx).After(*cached.TrialEndsAt) {
			return g.suspendExpiredTrial(ctx, tenantID)
		}
		return g.evaluate(cached.Status, cached.Reason), nil
	}
	g.metrics.ObserveCacheLookup("miss")

	tenant, err := g.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.StatusResult{
				Allowed: false,
				Status:  models.StatusBanned,
				Reason:  "tenant not found",
			}, nil
		}
		return nil, fmt.Errorf("check tenant status: %w", err)
	}

	if tenant.Status == models.StatusTrial && tenant.IsTrialExpired(requestcontext.Now(ctx)) {
		return g.suspendExpiredTrial(ctx, tenantID)
	}

	g.cache.fill(ctx, tenantID, cachedStatus{
		Status:      tenant.Status,
		Reason:      tenant.SuspensionReason,
		TrialEndsAt: tenant.TrialEndsAt,
	})
	return g.evaluate(tenant.Status, tenant.SuspensionReason), nil
}

func (g *Guard) suspendExpiredTrial(ctx context.Context, tenantID id.TenantID) (*models.StatusResult, error) {
	if err := g.SuspendTenant(ctx, tenantID, ReasonTrialExpired); err != nil {
		return nil, fmt.Errorf("suspend expired trial: %w", err)
	}
	g.metrics.ObserveSuspension("trial")
	g.logger.Info("tenant suspended", "tenant_id", tenantID, "cause", "trial_expired")
	return &models.StatusResult{
		Allowed: false,
		Status:  models.StatusSuspended,
		Reason:  ReasonTrialExpired,
	}, nil
}

func (g *Guard) evaluate(status models.TenantStatus, reason string) *models.StatusResult {
	if status.AllowsOperation() {
		return &models.StatusResult{Allowed: true, Status: status}
	}
	if reason == "" {
		switch status {
		case models.StatusBanned:
			reason = "tenant banned"
		default:
			reason = "tenant suspended"
		}
	}
	g.metrics.ObserveRejection()
	return &models.StatusResult{Allowed: false, Status: status, Reason: reason}
}

// SuspendTenant writes the new status to the relational store, then drops
// the cache entry. The cache is never updated in place; the next reader
// refetches, so concurrent readers cannot observe a half-applied change.
func (g *Guard) SuspendTenant(ctx context.Context, tenantID id.TenantID, reason string) error {
	return g.transition(ctx, tenantID, models.StatusSuspended, reason)
}

// ReactivateTenant restores a suspended tenant to ACTIVE.
func (g *Guard) ReactivateTenant(ctx context.Context, tenantID id.TenantID) error {
	return g.transition(ctx, tenantID, models.StatusActive, "")
}

// BanTenant permanently bans a tenant.
func (g *Guard) BanTenant(ctx context.Context, tenantID id.TenantID, reason string) error {
	return g.transition(ctx, tenantID, models.StatusBanned, reason)
}

func (g *Guard) transition(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, reason string) error {
	if err := g.tenants.UpdateStatus(ctx, tenantID, status, reason, requestcontext.Now(ctx)); err != nil {
		return fmt.Errorf("transition tenant to %s: %w", status, err)
	}
	if err := g.cache.invalidate(ctx, tenantID); err != nil {
		// The stale entry self-expires within the cache TTL.
		g.logger.Warn("tenant status cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
	return nil
}

// CheckPaymentStatus reports whether the tenant is in good payment standing.
// Free-plan tenants always pass. A paid tenant past the payment cycle plus
// grace period is suspended write-through and fails the check.
func (g *Guard) CheckPaymentStatus(ctx context.Context, tenantID id.TenantID) (bool, error) {
	tenant, err := g.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check payment status: %w", err)
	}
	if tenant.Plan.IsFree() {
		return true, nil
	}
	if !tenant.IsPaymentOverdue(requestcontext.Now(ctx), g.cfg.PaymentCycle, g.cfg.PaymentGrace) {
		return true, nil
	}
	if err := g.SuspendTenant(ctx, tenantID, ReasonPaymentOverdue); err != nil {
		return false, fmt.Errorf("suspend overdue tenant: %w", err)
	}
	g.metrics.ObserveSuspension("payment")
	g.logger.Info("tenant suspended", "tenant_id", tenantID, "cause", "payment_overdue")
	return false, nil
}

// RequireActiveTenant is the pipeline-facing entry point: it resolves the
// tenant's status and converts a rejection into a typed failure the HTTP
// layer can map to a response.
func (g *Guard) RequireActiveTenant(ctx context.Context, tenantID id.TenantID) error {
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing tenant")
	}
	result, err := g.CheckTenantStatus(ctx, tenantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "tenant status check failed")
	}
	if result.Allowed {
		return nil
	}
	switch result.Status {
	case models.StatusBanned:
		return dErrors.New(dErrors.CodeForbidden, "tenant banned")
	default:
		return dErrors.New(dErrors.CodeForbidden, SuspendedMessage(result.Reason))
	}
}

// SuspendedMessage is the tenant-facing auto-reply sent to a suspended
// tenant's customers instead of going silent. The wording follows the
// suspension cause when it can be inferred from the stored reason.
func SuspendedMessage(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "trial"):
		return "This account's free trial has ended. Service will resume once a plan is activated."
	case strings.Contains(lower, "payment"):
		return "This account is temporarily unavailable due to a pending payment. Service will resume once the balance is settled."
	default:
		return "This account is temporarily unavailable. Please try again later."
	}
}
