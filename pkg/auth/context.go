package auth

import (
	"context"

	"github.com/rhuss/askdocs/pkg/storage"
)

type identityKey struct{}

// WithIdentity returns a context carrying id. When id names a tenant the
// tenant is also set for storage scoping, so stored transcripts are only
// visible to the same tenant.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	if tenantID := id.TenantID(); tenantID != "" {
		ctx = storage.SetTenant(ctx, tenantID)
	}
	return ctx
}

// IdentityFromContext returns the caller set by the auth middleware, or
// nil outside of it.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
