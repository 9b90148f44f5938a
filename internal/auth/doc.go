// Package auth implements authentication for ember-chat.
//
// # Overview
//
// Two credentials exist per user:
//
//   - A short-lived JWT access token (HS256) sent as a bearer header on every
//     API request. Expiry yields 401, which clients handle by refreshing.
//   - A long-lived opaque refresh token, delivered as an HttpOnly cookie and
//     persisted server-side. Redeeming it mints a new access token and
//     rotates the refresh token in the same step.
//
// # Components
//
//   - JWTVerifier: mints and verifies access tokens
//   - RefreshManager: issues, redeems (with rotation), and revokes refresh
//     tokens against the store
//   - HTTPAuthMiddleware: extracts the bearer token, resolves the user, and
//     attaches an AuthContext to the request context
//
// # Context Propagation
//
// Handlers retrieve the authenticated identity with:
//
//	authCtx := auth.FromContext(r.Context())
//	if authCtx == nil { ... }
//
// # Rotation
//
// A user holds at most one live refresh token. Redeem invalidates the
// presented token and returns its replacement, so a leaked token stops
// working as soon as either holder uses it.
package auth
