// Package auth provides pluggable authentication and rate limiting for
// the askdocs server.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from the
// answer engine. The middleware also injects the tenant into the request
// context, which scopes stored answer transcripts.
package auth
