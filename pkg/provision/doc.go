// Package provision creates and updates local user accounts from validated
// identity claims.
//
// # Overview
//
// Users are provisioned just in time on first login and refreshed on every
// subsequent login. Application roles are derived from identity provider
// group memberships through a configured RoleMapping; users whose groups map
// to nothing receive the lowest-privilege role. Accounts are keyed by the
// provider's stable subject identifier, with an email fallback for accounts
// that predate subject tracking.
//
// Two UserStore implementations are provided: MemoryStore for tests and
// single-node deployments, and PostgresStore for shared deployments.
package provision
