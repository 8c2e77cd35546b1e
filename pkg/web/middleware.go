package web

import (
	"context"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/provision"
)

// SessionCookieName is the cookie carrying the opaque session identifier
const SessionCookieName = "gatehouse_session"

// SessionValidator resolves a session identifier to the owning user and
// revokes sessions
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string) (*provision.UserRecord, error)
	Revoke(ctx context.Context, sessionID string) error
}

// SessionMiddleware resolves the session cookie to an authenticated user
type SessionMiddleware struct {
	sessions SessionValidator
	optional bool // If true, allow requests without a session
}

// NewSessionMiddleware creates session middleware
func NewSessionMiddleware(sessions SessionValidator, optional bool) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with session authentication
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			unauthorizedResponse(w, "authentication required")
			return
		}

		user, err := m.sessions.Validate(r.Context(), cookie.Value)
		if err != nil {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			// Unknown, expired, and revoked sessions all get the same answer.
			unauthorizedResponse(w, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.UserKey, user)
		ctx = contextkeys.WithSessionID(ctx, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUser extracts the authenticated user from the request context
func GetUser(r *http.Request) *provision.UserRecord {
	user, ok := r.Context().Value(contextkeys.UserKey).(*provision.UserRecord)
	if !ok {
		return nil
	}
	return user
}

// RequireRole creates middleware that checks the authenticated user's role
func RequireRole(role provision.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				unauthorizedResponse(w, "authentication required")
				return
			}
			if user.Role != role {
				forbiddenResponse(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
