// Package login orchestrates the OAuth2 authorization code flow.
//
// # Overview
//
// The StateStore issues single-use state and nonce pairs for each login
// attempt and rejects replays; the Flow ties the pieces together: consume
// the state, exchange the code, validate the ID token against the attempt
// nonce, provision the user, and issue a session. State consumption happens
// first, so a forged callback never reaches the token endpoint.
package login
