package models

import (
	"time"

	id "gatekeeper/pkg/domain"
)

// Metric names the three independently-keyed quotas.
type Metric string

const (
	MetricOutboundMessages Metric = "outbound_messages"
	MetricInboundMessages  Metric = "inbound_messages"
	MetricAPIRequests      Metric = "api_requests"
)

// IsValid checks if the metric is one of the supported enum values.
func (m Metric) IsValid() bool {
	switch m {
	case MetricOutboundMessages, MetricInboundMessages, MetricAPIRequests:
		return true
	}
	return false
}

// RateLimitResult represents the outcome of a rate limit check.
//
// Limits are closed intervals: exactly Limit accepted units per window, the
// Limit+1-th rejected. Remaining never goes negative.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// UsageStats is a read-only view of a tenant's daily outbound consumption,
// consumed by dashboard warnings. No side effects derive from it.
type UsageStats struct {
	TenantID     id.TenantID `json:"tenant_id"`
	Date         string      `json:"date"`
	OutboundUsed int         `json:"outbound_used"`
	Limit        int         `json:"limit"`
	Remaining    int         `json:"remaining"`
	PercentUsed  int         `json:"percent_used"`
	ResetAt      time.Time   `json:"reset_at"`
}

// DailyUsageRecord is the durable analytics row mirrored into the relational
// store, idempotently upserted per (tenant, metric, date).
type DailyUsageRecord struct {
	TenantID id.TenantID
	Metric   Metric
	Date     string
	Count    int64
}
