package registry

import (
	"context"
)

type contextKey struct{}

var principalContextKey = contextKey{}

// WithPrincipal attaches an authenticated caller principal to the context.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFrom returns the authenticated caller principal, if any.
func PrincipalFrom(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(principalContextKey).(string)
	return principal, ok
}
