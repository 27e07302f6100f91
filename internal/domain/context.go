package domain

import "context"

type ctxKey string

const (
	sessionCtxKey ctxKey = "session_id"
	actionCtxKey  ctxKey = "action_id"
)

// ContextWithSessionID returns a new context carrying the chat session ID
// the engine belongs to.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithActionID tags ctx with the action being executed.
func ContextWithActionID(ctx context.Context, actionID string) context.Context {
	return context.WithValue(ctx, actionCtxKey, actionID)
}

// ActionIDFromContext returns the executing action's ID, or "".
func ActionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actionCtxKey).(string); ok {
		return v
	}
	return ""
}
