package models

import (
	"strings"
	"time"

	id "gatekeeper/pkg/domain"
)

// SanitizeKeySegment escapes delimiter characters in counter key segments to
// prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent counters.
//
// Example: a phone "+1:555" becomes "+1_555" instead of splitting into two
// key segments.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// OutboundDayKey builds the daily outbound-message counter key for a tenant.
// The window ID is the wall-clock date in the server's local time zone.
func OutboundDayKey(tenantID id.TenantID, day time.Time) string {
	return "ratelimit:outbound:" + tenantID.String() + ":" + day.Format("2006-01-02")
}

// InboundKey builds the per-phone rolling-window counter key. No window ID:
// the window is anchored at first increment by the key's TTL.
func InboundKey(phone string) string {
	return "ratelimit:inbound:" + SanitizeKeySegment(phone)
}

// APIRequestKey builds the per-tenant API request counter key.
func APIRequestKey(tenantID id.TenantID) string {
	return "ratelimit:api:" + tenantID.String()
}
