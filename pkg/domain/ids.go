// Package domain holds shared domain primitives: typed identifiers that make
// cross-entity ID mixups a compile error.
package domain

import (
	"github.com/google/uuid"

	dErrors "gatekeeper/pkg/domain-errors"
)

// TenantID identifies one customer account: the unit of billing, quota, and
// status.
type TenantID uuid.UUID

// ParseTenantID validates and converts a string into a TenantID.
// IDs must be valid, non-nil UUIDs.
func ParseTenantID(s string) (TenantID, error) {
	if s == "" {
		return TenantID{}, dErrors.New(dErrors.CodeBadRequest, "tenant ID cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid tenant ID")
	}
	if u == uuid.Nil {
		return TenantID{}, dErrors.New(dErrors.CodeBadRequest, "tenant ID cannot be the nil UUID")
	}
	return TenantID(u), nil
}

// String returns the canonical UUID string form.
func (t TenantID) String() string {
	return uuid.UUID(t).String()
}

// IsNil reports whether the ID is the zero UUID.
func (t TenantID) IsNil() bool {
	return uuid.UUID(t) == uuid.Nil
}
