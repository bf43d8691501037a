package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context. Downstream middleware
// reads it to resolve the request principal.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context, nil when the request
// is anonymous.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
