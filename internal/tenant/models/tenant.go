package models

import (
	"time"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Tenant is the aggregate root for one customer account.
//
// Invariants:
//   - Status is always one of the TenantStatus enum values
//   - A SUSPENDED or BANNED tenant carries a SuspensionReason
//   - Status transitions follow CanTransitionTo; BANNED is only left via an
//     operator reactivation
//
// Tenant status is an immediate admission boundary: every tenant-scoped
// request consults it (through a short-TTL cache) before business logic runs.
type Tenant struct {
	ID                id.TenantID  `json:"id"`
	Name              string       `json:"name"`
	Status            TenantStatus `json:"status"`
	SuspensionReason  string       `json:"suspension_reason,omitempty"`
	Plan              Plan         `json:"plan"`
	TrialEndsAt       *time.Time   `json:"trial_ends_at,omitempty"`
	LastPaymentAt     *time.Time   `json:"last_payment_at,omitempty"`
	MaxOutboundPerDay *int         `json:"max_outbound_per_day,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// IsTrialExpired reports whether a TRIAL tenant's trial period has passed.
func (t *Tenant) IsTrialExpired(now time.Time) bool {
	return t.Status == StatusTrial && t.TrialEndsAt != nil && now.After(*t.TrialEndsAt)
}

// IsPaymentOverdue reports whether a paid tenant has gone past the billing
// cycle plus grace period without a payment. Free-plan tenants are never
// overdue.
func (t *Tenant) IsPaymentOverdue(now time.Time, cycle, grace time.Duration) bool {
	if t.Plan.IsFree() {
		return false
	}
	if t.LastPaymentAt == nil {
		return false
	}
	return now.Sub(*t.LastPaymentAt) > cycle+grace
}

// TenantStatus is the account-status enum gating tenant-scoped operations.
type TenantStatus string

const (
	StatusActive    TenantStatus = "ACTIVE"
	StatusTrial     TenantStatus = "TRIAL"
	StatusSuspended TenantStatus = "SUSPENDED"
	StatusBanned    TenantStatus = "BANNED"
)

// ParseTenantStatus validates a persisted status string.
func ParseTenantStatus(s string) (TenantStatus, error) {
	st := TenantStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid tenant status: "+s)
	}
	return st, nil
}

// IsValid checks if the status is one of the supported enum values.
func (s TenantStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusSuspended, StatusBanned:
		return true
	}
	return false
}

// AllowsOperation reports whether tenant-scoped operations may proceed.
func (s TenantStatus) AllowsOperation() bool {
	return s == StatusActive || s == StatusTrial
}

// CanTransitionTo enforces the status state machine.
func (s TenantStatus) CanTransitionTo(target TenantStatus) bool {
	if s == target {
		return false
	}
	switch target {
	case StatusSuspended:
		return s != StatusBanned
	case StatusBanned:
		return true
	case StatusActive:
		// Reactivation from any non-active state is an operator action.
		return true
	case StatusTrial:
		// Trials are only ever created, never re-entered.
		return false
	}
	return false
}

// Plan is the billing plan; the free plan is exempt from payment checks.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanBusiness Plan = "business"
)

// IsValid checks if the plan is one of the supported enum values.
func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanBusiness:
		return true
	}
	return false
}

// IsFree reports whether the plan is exempt from payment enforcement.
func (p Plan) IsFree() bool {
	return p == PlanFree
}

// StatusResult is the outcome of a tenant admission check.
type StatusResult struct {
	Allowed bool         `json:"allowed"`
	Status  TenantStatus `json:"status"`
	Reason  string       `json:"reason,omitempty"`
}
