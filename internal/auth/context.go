package auth

import (
	"context"

	"royalty-engine/internal/audit"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Role    Role
	Subject string
}

type identityKey struct{}

// WithIdentity stores the caller's role and token subject in ctx.
func WithIdentity(ctx context.Context, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{Role: role, Subject: subject})
}

// IdentityFromContext returns the caller stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RoleFromContext returns the caller's role, or "" for unauthenticated requests.
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// ActorFromContext returns the audit actor of the authenticated caller, or
// audit.System when the request carried no identity.
func ActorFromContext(ctx context.Context) audit.ActorID {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return audit.System
	}
	return audit.ActorID(id.Subject)
}
