// Package ddos detects and temporarily blocks abusive traffic at two
// granularities (source IP, source phone number) plus one aggregate guard on
// total webhook volume. It is security-oriented and has no tenant awareness;
// tenant quotas live in the rate limiter.
//
// The asymmetry is deliberate: an abusive IP or phone is expected to stay
// abusive for a cooldown, so breaching the threshold writes a durable block
// entry that outlives the traffic. The webhook guard protects aggregate
// capacity and must relax the instant load drops, so it is a bare sliding
// counter with no block entry.
package ddos

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"gatekeeper/internal/counter"
	ddosmetrics "gatekeeper/internal/ddos/metrics"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/ratelimit/models"
	dErrors "gatekeeper/pkg/domain-errors"
)

const (
	blockedPrefix = "ddos:blocked:"
	countPrefix   = "ddos:count:"
	webhookKey    = countPrefix + subjectWebhook + ":global"
)

type Service struct {
	counters counter.Store
	cfg      config.DDoSConfig
	logger   *slog.Logger
	metrics  *ddosmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *ddosmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(counters counter.Store, cfg config.DDoSConfig, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}

	svc := &Service{
		counters: counters,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckIP admits or rejects one request from ip. An existing block entry
// short-circuits; otherwise the windowed counter is consumed and the
// breaching request both writes the block entry and is itself rejected.
func (s *Service) CheckIP(ctx context.Context, ip string) (*CheckResult, error) {
	return s.check(ctx, subjectIP, ip, s.cfg.MaxRequestsPerIP)
}

// CheckPhoneNumber is CheckIP at phone granularity, used on the
// inbound-webhook path to stop a single number from flooding the system.
func (s *Service) CheckPhoneNumber(ctx context.Context, phone string) (*CheckResult, error) {
	return s.check(ctx, subjectPhone, phone, s.cfg.MaxRequestsPerPhone)
}

func (s *Service) check(ctx context.Context, kind, subject string, limit int) (*CheckResult, error) {
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, kind+" subject is required")
	}
	subject = models.SanitizeKeySegment(subject)
	blockKey := blockedPrefix + kind + ":" + subject

	_, blocked, err := s.counters.Get(ctx, blockKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read block entry")
	}
	if blocked {
		s.metrics.ObserveRejection(kind)
		return &CheckResult{
			Blocked:    true,
			Reason:     "temporarily blocked for abusive traffic",
			RetryAfter: s.remainingBlock(ctx, blockKey),
		}, nil
	}

	n, err := s.counters.IncrWindow(ctx, countPrefix+kind+":"+subject, s.cfg.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to increment abuse counter")
	}
	if n <= int64(limit) {
		return &CheckResult{Allowed: true}, nil
	}

	// Threshold breached: the block entry is written before the decision is
	// returned, and the breaching request itself is rejected.
	if err := s.counters.Set(ctx, blockKey, "1", s.cfg.BlockDuration); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write block entry")
	}
	s.metrics.ObserveBlock(kind)
	s.metrics.ObserveRejection(kind)
	s.logger.Warn("abuse threshold breached, subject blocked",
		"kind", kind, "subject", subject, "count", n, "limit", limit,
		"block_seconds", int(s.cfg.BlockDuration.Seconds()),
	)
	return &CheckResult{
		Blocked:    true,
		Reason:     "request threshold exceeded",
		RetryAfter: int(s.cfg.BlockDuration.Seconds()),
	}, nil
}

// CheckWebhookRate bounds total webhook volume with a single global counter.
// No block entry: rejection lasts only while the current window is over
// threshold and self-heals on expiry.
func (s *Service) CheckWebhookRate(ctx context.Context) (*CheckResult, error) {
	n, err := s.counters.IncrWindow(ctx, webhookKey, s.cfg.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to increment webhook counter")
	}
	if n <= int64(s.cfg.MaxWebhookRequests) {
		return &CheckResult{Allowed: true}, nil
	}

	s.metrics.ObserveRejection(subjectWebhook)
	retryAfter := int(s.cfg.Window.Seconds())
	if ttl, ok, err := s.counters.TTL(ctx, webhookKey); err == nil && ok && ttl > 0 {
		retryAfter = int(ttl.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
	}
	return &CheckResult{
		Reason:     "webhook capacity exceeded",
		RetryAfter: retryAfter,
	}, nil
}

// BlockIP writes a block entry directly, bypassing the threshold logic.
func (s *Service) BlockIP(ctx context.Context, ip string) error {
	return s.block(ctx, subjectIP, ip)
}

// UnblockIP removes the block entry and the current abuse counter so the
// next request starts a fresh window.
func (s *Service) UnblockIP(ctx context.Context, ip string) error {
	return s.unblock(ctx, subjectIP, ip)
}

// BlockPhone writes a block entry directly, bypassing the threshold logic.
func (s *Service) BlockPhone(ctx context.Context, phone string) error {
	return s.block(ctx, subjectPhone, phone)
}

// UnblockPhone removes the block entry and the current abuse counter.
func (s *Service) UnblockPhone(ctx context.Context, phone string) error {
	return s.unblock(ctx, subjectPhone, phone)
}

func (s *Service) block(ctx context.Context, kind, subject string) error {
	if subject == "" {
		return dErrors.New(dErrors.CodeBadRequest, kind+" subject is required")
	}
	subject = models.SanitizeKeySegment(subject)
	if err := s.counters.Set(ctx, blockedPrefix+kind+":"+subject, "1", s.cfg.BlockDuration); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write block entry")
	}
	s.metrics.ObserveBlock(kind)
	s.logger.Info("subject blocked by operator", "kind", kind, "subject", subject)
	return nil
}

func (s *Service) unblock(ctx context.Context, kind, subject string) error {
	if subject == "" {
		return dErrors.New(dErrors.CodeBadRequest, kind+" subject is required")
	}
	subject = models.SanitizeKeySegment(subject)
	err := s.counters.Del(ctx,
		blockedPrefix+kind+":"+subject,
		countPrefix+kind+":"+subject,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to remove block entry")
	}
	s.logger.Info("subject unblocked by operator", "kind", kind, "subject", subject)
	return nil
}

// BlockedIPs enumerates active IP blocks. Diagnostic path only.
func (s *Service) BlockedIPs(ctx context.Context) ([]BlockEntry, error) {
	return s.blocked(ctx, subjectIP)
}

// BlockedPhones enumerates active phone blocks. Diagnostic path only.
func (s *Service) BlockedPhones(ctx context.Context) ([]BlockEntry, error) {
	return s.blocked(ctx, subjectPhone)
}

// Stats gathers both enumerations concurrently.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ips, err := s.blocked(gctx, subjectIP)
		if err != nil {
			return err
		}
		stats.BlockedIPs = ips
		return nil
	})
	g.Go(func() error {
		phones, err := s.blocked(gctx, subjectPhone)
		if err != nil {
			return err
		}
		stats.BlockedPhones = phones
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Service) blocked(ctx context.Context, kind string) ([]BlockEntry, error) {
	prefix := blockedPrefix + kind + ":"
	keys, err := s.counters.Keys(ctx, prefix)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to enumerate block entries")
	}

	entries := make([]BlockEntry, 0, len(keys))
	for _, key := range keys {
		entry := BlockEntry{Subject: strings.TrimPrefix(key, prefix)}
		if ttl, ok, err := s.counters.TTL(ctx, key); err == nil && ok {
			entry.ExpiresIn = ttl
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Subject < entries[j].Subject })
	return entries, nil
}

func (s *Service) remainingBlock(ctx context.Context, blockKey string) int {
	ttl, ok, err := s.counters.TTL(ctx, blockKey)
	if err != nil || !ok || ttl <= 0 {
		return int(s.cfg.BlockDuration.Seconds())
	}
	secs := int(ttl.Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
