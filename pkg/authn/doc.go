// Package authn validates ID tokens issued by the identity provider.
//
// Validation is strict and ordered: algorithm allow-list, key resolution,
// signature, issuer, audience, freshness window, and nonce binding. A single
// failed check fails the whole token; no partial claims escape.
package authn
