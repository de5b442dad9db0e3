// Package service implements the per-tenant and per-subject quota checks.
//
// The outbound and inbound limits deliberately split check from increment:
// the check is a plain read and the increment happens only once the unit is
// actually consumed. Under concurrent bursts this admits at most one extra
// unit per window, a trade-off the business layer depends on. The API request
// limit is the exception: it guards a high-frequency path, so it evaluates
// and consumes in a single atomic increment.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/requestcontext"
)

const minuteWindow = 60 * time.Second

// QuotaStore reads tenant-specific quota overrides from the relational store.
type QuotaStore interface {
	// OutboundDailyLimit returns the tenant's configured daily cap.
	// ok is false when the tenant has no override.
	OutboundDailyLimit(ctx context.Context, tenantID id.TenantID) (limit int, ok bool, err error)
}

// UsageStore durably records consumed units for analytics. Implementations
// must make RecordDailyUsage an idempotent upsert keyed by
// (tenant, metric, date).
type UsageStore interface {
	RecordDailyUsage(ctx context.Context, rec models.DailyUsageRecord) error
}

type Service struct {
	counters counter.Store
	quotas   QuotaStore
	usage    UsageStore
	cfg      config.RateLimitConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithUsageStore(usage UsageStore) Option {
	return func(s *Service) {
		s.usage = usage
	}
}

func New(counters counter.Store, quotas QuotaStore, cfg config.RateLimitConfig, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if quotas == nil {
		return nil, fmt.Errorf("quota store is required")
	}

	svc := &Service{
		counters: counters,
		quotas:   quotas,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckOutboundMessageLimit compares today's outbound counter against the
// tenant's daily cap without consuming a unit. Call
// IncrementOutboundMessages only after a send is actually attempted.
func (s *Service) CheckOutboundMessageLimit(ctx context.Context, tenantID id.TenantID) (*models.RateLimitResult, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID is required")
	}

	limit, err := s.outboundLimit(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	count, err := s.readCount(ctx, models.OutboundDayKey(tenantID, now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read outbound counter")
	}

	resetAt := nextMidnight(now)
	result := &models.RateLimitResult{
		Allowed:   count < int64(limit),
		Limit:     limit,
		Remaining: remaining(limit, count),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = secondsUntil(now, resetAt)
	}
	s.metrics.ObserveCheck(string(models.MetricOutboundMessages), result.Allowed)
	return result, nil
}

// IncrementOutboundMessages consumes one unit of the daily outbound quota.
// The first increment of the day attaches a TTL running to local midnight.
// The durable analytics upsert is best-effort: it runs detached and its
// failure is logged, never propagated.
func (s *Service) IncrementOutboundMessages(ctx context.Context, tenantID id.TenantID) error {
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "tenant ID is required")
	}

	now := requestcontext.Now(ctx)
	key := models.OutboundDayKey(tenantID, now)
	n, err := s.counters.Incr(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to increment outbound counter")
	}
	if n == 1 {
		if err := s.counters.Expire(ctx, key, nextMidnight(now).Sub(now)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to set outbound counter expiry")
		}
	}

	s.reportUsage(ctx, models.DailyUsageRecord{
		TenantID: tenantID,
		Metric:   models.MetricOutboundMessages,
		Date:     now.Format("2006-01-02"),
		Count:    n,
	})
	return nil
}

// CheckInboundMessageLimit is the anti-spam read on the webhook ingestion
// path: a 60-second window keyed by phone number, decision based on read
// only.
func (s *Service) CheckInboundMessageLimit(ctx context.Context, phone string) (*models.RateLimitResult, error) {
	if phone == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "phone number is required")
	}

	key := models.InboundKey(phone)
	count, err := s.readCount(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read inbound counter")
	}

	limit := s.cfg.InboundPerMinute
	result := &models.RateLimitResult{
		Allowed:   count < int64(limit),
		Limit:     limit,
		Remaining: remaining(limit, count),
		ResetAt:   s.windowReset(ctx, key),
	}
	if !result.Allowed {
		result.RetryAfter = secondsUntil(requestcontext.Now(ctx), result.ResetAt)
	}
	s.metrics.ObserveCheck(string(models.MetricInboundMessages), result.Allowed)
	return result, nil
}

// IncrementInboundMessages consumes one inbound unit. Invoked once per
// accepted inbound message, separately from the check.
func (s *Service) IncrementInboundMessages(ctx context.Context, phone string) error {
	if phone == "" {
		return dErrors.New(dErrors.CodeBadRequest, "phone number is required")
	}
	if _, err := s.counters.IncrWindow(ctx, models.InboundKey(phone), minuteWindow); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to increment inbound counter")
	}
	return nil
}

// CheckAPIRequestLimit evaluates and consumes one unit in a single atomic
// increment. It sits in the protected-route pipeline, so store failures
// surface to the caller rather than being swallowed.
func (s *Service) CheckAPIRequestLimit(ctx context.Context, tenantID id.TenantID) (*models.RateLimitResult, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID is required")
	}

	key := models.APIRequestKey(tenantID)
	n, err := s.counters.IncrWindow(ctx, key, minuteWindow)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to consume API request unit")
	}

	limit := s.cfg.APIRequestsPerMinute
	result := &models.RateLimitResult{
		Allowed:   n <= int64(limit),
		Limit:     limit,
		Remaining: remaining(limit, n),
		ResetAt:   s.windowReset(ctx, key),
	}
	if !result.Allowed {
		result.RetryAfter = secondsUntil(requestcontext.Now(ctx), result.ResetAt)
	}
	s.metrics.ObserveCheck(string(models.MetricAPIRequests), result.Allowed)
	return result, nil
}

// GetUsageStats returns the tenant's daily outbound consumption for
// dashboards. Read-only.
func (s *Service) GetUsageStats(ctx context.Context, tenantID id.TenantID) (*models.UsageStats, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID is required")
	}

	limit, err := s.outboundLimit(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	count, err := s.readCount(ctx, models.OutboundDayKey(tenantID, now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read outbound counter")
	}

	pct := 0
	if limit > 0 {
		pct = int(count * 100 / int64(limit))
	}
	return &models.UsageStats{
		TenantID:     tenantID,
		Date:         now.Format("2006-01-02"),
		OutboundUsed: int(count),
		Limit:        limit,
		Remaining:    remaining(limit, count),
		PercentUsed:  pct,
		ResetAt:      nextMidnight(now),
	}, nil
}

// IsApproachingLimit reports whether the tenant has consumed at least
// thresholdPercent of today's outbound quota. Zero threshold falls back to
// the configured default.
func (s *Service) IsApproachingLimit(ctx context.Context, tenantID id.TenantID, thresholdPercent int) (bool, error) {
	if thresholdPercent <= 0 {
		thresholdPercent = s.cfg.ApproachingThresholdPc
	}
	stats, err := s.GetUsageStats(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return stats.PercentUsed >= thresholdPercent, nil
}

func (s *Service) outboundLimit(ctx context.Context, tenantID id.TenantID) (int, error) {
	limit, ok, err := s.quotas.OutboundDailyLimit(ctx, tenantID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read tenant quota override")
	}
	if !ok || limit <= 0 {
		return s.cfg.DefaultOutboundPerDay, nil
	}
	return limit, nil
}

func (s *Service) readCount(ctx context.Context, key string) (int64, error) {
	val, ok, err := s.counters.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %q holds non-numeric value %q", key, val)
	}
	return n, nil
}

// windowReset derives the reset time from the key's remaining TTL. A missing
// key means the window has not started: the next unit opens a fresh one.
func (s *Service) windowReset(ctx context.Context, key string) time.Time {
	now := requestcontext.Now(ctx)
	ttl, ok, err := s.counters.TTL(ctx, key)
	if err != nil || !ok || ttl <= 0 {
		return now.Add(minuteWindow)
	}
	return now.Add(ttl)
}

// reportUsage mirrors the counter into the relational store for analytics.
// Detached from the request: a store blip must never block or fail a send.
func (s *Service) reportUsage(ctx context.Context, rec models.DailyUsageRecord) {
	if s.usage == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		reportCtx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := s.usage.RecordDailyUsage(reportCtx, rec); err != nil {
			s.logger.Warn("failed to record daily usage",
				"error", err,
				"tenant_id", rec.TenantID,
				"metric", rec.Metric,
				"date", rec.Date,
			)
		}
	}()
}

func remaining(limit int, count int64) int {
	r := int64(limit) - count
	if r < 0 {
		return 0
	}
	return int(r)
}

func secondsUntil(now, t time.Time) int {
	secs := int(t.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// nextMidnight returns the upcoming midnight in the server's local zone: the
// daily window boundary is wall-clock date, not a rolling 24 hours.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
