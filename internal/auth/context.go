package auth

import "context"

type contextKey string

const contextKeyUserID contextKey = "user_id"

// WithUserID returns a copy of ctx carrying the caller's user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// UserIDFromContext returns the caller's user id. An empty id counts as absent.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyUserID).(string)
	return id, ok && id != ""
}
