package circuit

import "time"

// State is the circuit's tagged state enum as persisted in the counter store.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ParseState converts a persisted string into a State. ok is false for
// unrecognized values; the breaker maps those to CLOSED in exactly one place
// so stray persisted values cannot silently fall through multiple cases.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateClosed, StateOpen, StateHalfOpen:
		return State(s), true
	}
	return "", false
}

// IsValid checks if the state is one of the supported enum values.
func (s State) IsValid() bool {
	_, ok := ParseState(string(s))
	return ok
}

// Config is the per-instance breaker tuning. Each downstream service gets its
// own values reflecting its recovery profile.
type Config struct {
	// FailureThreshold is the number of windowed failures that opens the
	// circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a half-open trial.
	Timeout time.Duration
	// WindowSize bounds the lifetime of the failure and success counters.
	WindowSize time.Duration
}

// Status is the read-only diagnostic view of one breaker.
type Status struct {
	Service           string     `json:"service"`
	State             State      `json:"state"`
	Failures          int64      `json:"failures"`
	HalfOpenSuccesses int64      `json:"half_open_successes"`
	OpenedAt          *time.Time `json:"opened_at,omitempty"`
	FailureThreshold  int        `json:"failure_threshold"`
	SuccessThreshold  int        `json:"success_threshold"`
	TimeoutSeconds    int        `json:"timeout_seconds"`
}
