package auth

import (
	"context"

	"notes-server/internal/user"
)

type principalKey struct{}

// WithPrincipal stores the authenticated user on the request context.
func WithPrincipal(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// PrincipalFrom returns the authenticated user, if the request carried a
// valid token for an existing account.
func PrincipalFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(principalKey{}).(user.User)
	return u, ok
}
