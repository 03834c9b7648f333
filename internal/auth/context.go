package auth

import (
	"context"
	"strings"
)

type userIDKey struct{}
type sessionIDKey struct{}

// ContextWithUser attaches the authenticated user and session ids to the
// context for downstream handlers and audit logging.
func ContextWithUser(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, strings.TrimSpace(userID))
	return context.WithValue(ctx, sessionIDKey{}, strings.TrimSpace(sessionID))
}

// UserIDFromContext extracts the authenticated user id from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SessionIDFromContext extracts the session id the request was authenticated
// under, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
