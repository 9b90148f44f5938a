// Package server implements the HTTP API for ember-chat.
//
// # Endpoints
//
// Authentication:
//   - POST /api/auth/login: verify credentials, return an access token, set
//     the refresh cookie
//   - POST /api/auth/refresh: redeem the refresh cookie for a new access
//     token, rotating the cookie
//   - POST /api/auth/logout: revoke the refresh token and clear the cookie
//
// Chat:
//   - POST /api/chat/stream: send a message, stream the assistant reply
//   - GET /api/chat/sessions: list the caller's sessions
//   - GET /api/chat/sessions/{id}/history: full message history
//   - PATCH /api/chat/sessions/{id}: rename a session
//   - DELETE /api/chat/sessions/{id}: delete a session and its messages
//   - GET /api/chat/watch/{id}: follow an in-progress reply from another
//     connection
//
// # Wire format
//
// Streaming responses are line-framed JSON events: each frame is a single
// JSON object on one line prefixed with "data: " and followed by a blank
// line. Frames carry session_id (first frame of a new conversation), chunk
// (reply text to append), complete (end of a successful turn), or error
// (end of a failed turn). Blank lines between frames are keep-alives and
// carry no data.
//
// # Authentication model
//
// All /api/chat endpoints require a Bearer JWT access token. Access tokens
// are short-lived; when one expires mid-session the server answers 401 and
// the client redeems its HttpOnly refresh cookie at /api/auth/refresh for a
// new one. Refresh tokens are opaque, stored server-side, and rotated on
// every redeem.
package server
