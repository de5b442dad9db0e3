package ddos

import "time"

// Subject kinds for block and counter keys.
const (
	subjectIP      = "ip"
	subjectPhone   = "phone"
	subjectWebhook = "webhook"
)

// CheckResult is the outcome of an abuse check.
type CheckResult struct {
	Allowed bool `json:"allowed"`
	// Blocked is true when a durable block entry rejected the subject (as
	// opposed to a window counter over threshold).
	Blocked    bool   `json:"blocked"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds
}

// BlockEntry describes one active block for diagnostics.
type BlockEntry struct {
	Subject   string        `json:"subject"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// Stats is the diagnostic snapshot: active blocks at both granularities.
type Stats struct {
	BlockedIPs    []BlockEntry `json:"blocked_ips"`
	BlockedPhones []BlockEntry `json:"blocked_phones"`
}
