package shared

import "context"

// Identity describes the authenticated actor attached to a request.
type Identity struct {
	UserID         int64
	Username       string
	Role           string
	Status         string
	SessionVersion int64
	Anonymous      bool
}

type identityContextKey struct{}

type permissionsContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the identity from context, nil when the
// request is unauthenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(identityContextKey{}).(*Identity)
	return ident
}

// ContextWithPermissions stores the role's materialized permission list so
// downstream handlers never recompute it.
func ContextWithPermissions(ctx context.Context, perms []string) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, perms)
}

// PermissionsFromContext extracts the permission list from context.
func PermissionsFromContext(ctx context.Context) []string {
	perms, _ := ctx.Value(permissionsContextKey{}).([]string)
	return perms
}
