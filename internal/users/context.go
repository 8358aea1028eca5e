package users

import "context"

type currentUserKey struct{}

// ContextWithCurrent stores the signed-in user in ctx.
func ContextWithCurrent(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, currentUserKey{}, user)
}

// CurrentFromContext returns the signed-in user, or nil for anonymous requests.
func CurrentFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(currentUserKey{}).(*User)
	return user
}
