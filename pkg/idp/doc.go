// Package idp contains the outbound client capabilities for the identity
// provider, split into narrow pieces instead of one large stateful client.
//
// # Overview
//
// Three capabilities, each independently replaceable:
//
// KeySetCache: fetches and caches the provider's JWKS public keys with
// request coalescing, a minimum refetch interval, and stale-snapshot fallback
// when the provider is unreachable.
//
// Exchanger: performs the authorization-code exchange against the token
// endpoint with client authentication, bounded timeouts, and a small retry
// budget for transient failures. 4xx responses are never retried.
//
// ProfileFetcher: optional userinfo lookup used to enrich identity claims
// before provisioning.
//
// Endpoints are pinned in configuration or resolved once at startup through
// OIDC issuer discovery (Discover).
package idp
