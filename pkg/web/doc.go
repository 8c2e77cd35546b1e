// Package web exposes the authentication HTTP surface.
//
// # Overview
//
// Four routes: GET /auth/login redirects the browser to the identity
// provider, GET /auth/callback finishes the round trip and sets the session
// cookie, POST /auth/logout revokes the session, and GET /auth/me returns
// the authenticated user. SessionMiddleware resolves the session cookie to
// a user on the request context for downstream handlers.
//
// Failure responses are deliberately generic. The reason a callback was
// rejected goes to logs and metrics, never to the browser.
package web
