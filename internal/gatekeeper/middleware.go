// Package gatekeeper composes the admission-control services into HTTP
// middleware stages. Each stage takes its failure policy as an explicit
// constructor argument: fail open admits traffic when the backing store
// cannot answer, fail closed rejects it. The mix across stages is
// deliberate: admitting unlimited billable traffic during a store outage
// is worse than a false rejection, while dropping webhooks over a
// dependency blip is worse than skipping one abuse check.
package gatekeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/ddos"
	"gatekeeper/internal/ratelimit/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/metadata"
	"gatekeeper/pkg/requestcontext"
)

// FailurePolicy decides what a stage does when its backing store errors.
type FailurePolicy string

const (
	// FailOpen logs the store error and admits the request.
	FailOpen FailurePolicy = "open"
	// FailClosed rejects the request with 503 when the store errors.
	FailClosed FailurePolicy = "closed"
)

// TenantHeader carries the caller's tenant identity, set by the API gateway
// after authentication.
const TenantHeader = "X-Tenant-ID"

// Pipeline wires the admission services into middleware stages.
type Pipeline struct {
	ratelimit RateLimiter
	ddos      DDoSProtector
	guard     TenantGuard
	logger    *slog.Logger
}

type RateLimiter interface {
	CheckAPIRequestLimit(ctx context.Context, tenantID id.TenantID) (*models.RateLimitResult, error)
	CheckOutboundMessageLimit(ctx context.Context, tenantID id.TenantID) (*models.RateLimitResult, error)
	CheckInboundMessageLimit(ctx context.Context, phone string) (*models.RateLimitResult, error)
	IncrementInboundMessages(ctx context.Context, phone string) error
}

type DDoSProtector interface {
	CheckIP(ctx context.Context, ip string) (*ddos.CheckResult, error)
	CheckPhoneNumber(ctx context.Context, phone string) (*ddos.CheckResult, error)
	CheckWebhookRate(ctx context.Context) (*ddos.CheckResult, error)
}

type TenantGuard interface {
	RequireActiveTenant(ctx context.Context, tenantID id.TenantID) error
}

func New(ratelimit RateLimiter, protector DDoSProtector, guard TenantGuard, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{ratelimit: ratelimit, ddos: protector, guard: guard, logger: logger}
}

// TenantContext resolves the tenant header into the request context. Stages
// that need a tenant reject when it is absent; routes without tenant scope
// pass through untouched.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(TenantHeader))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, err := id.ParseTenantID(header)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid tenant"))
			return
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTenantID(r.Context(), tenantID)))
	})
}

// IPGuard rejects requests from blocked or abusive client IPs.
func (p *Pipeline) IPGuard(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result, err := p.ddos.CheckIP(ctx, metadata.GetClientIP(ctx))
			if err != nil {
				p.fail(w, r, next, policy, "ip guard", err)
				return
			}
			if !result.Allowed {
				writeRejected(w, "too_many_requests",
					"Too many requests from this address. Please try again later.", result.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIRateLimit enforces the per-tenant request window and consumes one unit
// of it. The X-RateLimit-* headers are part of the public API contract and
// are set on allowed responses too.
func (p *Pipeline) APIRateLimit(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenantID := requestcontext.TenantID(ctx)
			if tenantID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing tenant"))
				return
			}
			result, err := p.ratelimit.CheckAPIRequestLimit(ctx, tenantID)
			if err != nil {
				p.fail(w, r, next, policy, "api rate limit", err)
				return
			}
			setRateLimitHeaders(w, result)
			if !result.Allowed {
				writeRejected(w, "rate_limit_exceeded",
					"API request quota exceeded. Please try again later.", result.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantGate rejects requests from suspended, banned, or unknown tenants.
func (p *Pipeline) TenantGate(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if err := p.guard.RequireActiveTenant(ctx, requestcontext.TenantID(ctx)); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInternal) {
					p.fail(w, r, next, policy, "tenant gate", err)
					return
				}
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OutboundMessageLimit rejects sends past the tenant's daily quota. It only
// reads; the handler records the message after the provider accepts it.
func (p *Pipeline) OutboundMessageLimit(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenantID := requestcontext.TenantID(ctx)
			if tenantID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing tenant"))
				return
			}
			result, err := p.ratelimit.CheckOutboundMessageLimit(ctx, tenantID)
			if err != nil {
				p.fail(w, r, next, policy, "outbound message limit", err)
				return
			}
			if !result.Allowed {
				writeRejected(w, "daily_message_limit_exceeded",
					"Daily message quota exhausted. The quota resets at midnight.", result.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WebhookRateLimit throttles the aggregate webhook ingestion rate.
func (p *Pipeline) WebhookRateLimit(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := p.ddos.CheckWebhookRate(r.Context())
			if err != nil {
				p.fail(w, r, next, policy, "webhook rate limit", err)
				return
			}
			if !result.Allowed {
				writeRejected(w, "webhook_rate_exceeded",
					"Webhook ingestion is saturated. Please retry.", result.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PhoneGuard rejects webhooks from blocked or abusive phone numbers. The
// phone is sniffed from the JSON body; requests without one pass through.
func (p *Pipeline) PhoneGuard(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			phone := sniffPhone(r)
			if phone == "" {
				next.ServeHTTP(w, r)
				return
			}
			result, err := p.ddos.CheckPhoneNumber(r.Context(), phone)
			if err != nil {
				p.fail(w, r, next, policy, "phone guard", err)
				return
			}
			if !result.Allowed {
				writeRejected(w, "too_many_requests",
					"Too many messages from this number. Please try again later.", result.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InboundMessageLimit throttles messages per sender phone and records the
// admitted ones against the window.
func (p *Pipeline) InboundMessageLimit(policy FailurePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			phone := sniffPhone(r)
			if phone == "" {
				next.ServeHTTP(w, r)
				return
			}
			result, err := p.ratelimit.CheckInboundMessageLimit(ctx, phone)
			if err != nil {
				p.fail(w, r, next, policy, "inbound message limit", err)
				return
			}
			if !result.Allowed {
				writeRejected(w, "rate_limit_exceeded",
					"Message rate for this number exceeded. Please try again later.", result.RetryAfter)
				return
			}
			if err := p.ratelimit.IncrementInboundMessages(ctx, phone); err != nil {
				p.logger.Error("failed to record inbound message", "error", err, "phone", phone)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// fail applies the stage's failure policy to a store error.
func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, next http.Handler, policy FailurePolicy, stage string, err error) {
	if policy == FailOpen {
		p.logger.Error("admission check unavailable, admitting", "stage", stage, "error", err)
		next.ServeHTTP(w, r)
		return
	}
	p.logger.Error("admission check unavailable, rejecting", "stage", stage, "error", err)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "admission check unavailable"))
}

// sniffPhone extracts the sender phone from a webhook JSON body, restoring
// the body for the downstream handler.
func sniffPhone(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	bodyBytes, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err != nil || len(bodyBytes) == 0 {
		return ""
	}
	var payload struct {
		From  string `json:"from"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		return ""
	}
	if phone := strings.TrimSpace(payload.From); phone != "" {
		return phone
	}
	return strings.TrimSpace(payload.Phone)
}

func setRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", result.ResetAt.Format(time.RFC3339))
}

func writeRejected(w http.ResponseWriter, code, message string, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       code,
		"message":     message,
		"retry_after": retryAfter,
	})
}
