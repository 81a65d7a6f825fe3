package auth

import "context"

type userKey struct{}

func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey{}, username)
}

// UserFromContext returns the admin authenticated by Middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(userKey{}).(string)
	return username, ok
}
