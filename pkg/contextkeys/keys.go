// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains the provisioned *provision.UserRecord
	// Set by: web.RequireSession middleware after session validation
	// Used by: Authenticated endpoints
	UserKey Key = "user_record"

	// SessionIDKey contains the validated session identifier string
	// Set by: web.RequireSession middleware
	// Used by: Logout handler, audit logging
	SessionIDKey Key = "session_id"
)

// WithSessionID stores the session identifier on the context
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// SessionID retrieves the session identifier from the context
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
