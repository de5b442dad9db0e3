// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them. Keeping
// this package free of net/http lets services import only what they need.
package requestcontext

import (
	"context"
	"time"

	id "gatekeeper/pkg/domain"
)

type (
	tenantIDKey    struct{}
	requestTimeKey struct{}
)

// TenantID retrieves the tenant ID from the context. Returns the zero value
// if the request carried no tenant context.
func TenantID(ctx context.Context) id.TenantID {
	if t, ok := ctx.Value(tenantIDKey{}).(id.TenantID); ok {
		return t
	}
	return id.TenantID{}
}

// WithTenantID injects a tenant ID into the context.
func WithTenantID(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, tests without injection).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by tests and batch
// operations that need a consistent "now".
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
