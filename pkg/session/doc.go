// Package session issues and validates opaque server-side sessions.
//
// # Overview
//
// A session identifier is 256 bits of randomness encoded as base64url and
// carries no user information; all session state lives server-side. The
// Manager resolves identifiers to provisioned users, revokes sessions
// idempotently, and sweeps expired records. Unknown, expired, and revoked
// sessions are indistinguishable to callers, which all see
// ErrSessionInvalid.
package session
