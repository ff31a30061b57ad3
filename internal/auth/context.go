package auth

import "context"

// CookieName is the cookie carrying the session token.
const CookieName = "auth_token"

// Context is the authorization state derived for a single request.
type Context struct {
	Blocked bool
	IsAdmin bool
}

// FailClosed is the least privileged context, used whenever the caller
// cannot be resolved to a permission row.
func FailClosed() Context {
	return Context{Blocked: true, IsAdmin: false}
}

// CanRead reports whether listing users is allowed.
func (c Context) CanRead() bool {
	return !c.Blocked
}

// CanWrite reports whether creating, updating or deleting users is allowed.
func (c Context) CanWrite() bool {
	return !c.Blocked && c.IsAdmin
}

type contextKey struct{}

func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the attached authorization context, or the
// fail-closed one when none was attached.
func FromContext(ctx context.Context) Context {
	if ac, ok := ctx.Value(contextKey{}).(Context); ok {
		return ac
	}
	return FailClosed()
}
