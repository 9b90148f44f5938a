// Package client implements the chat API client: authenticated dispatch,
// credential renewal, stream decoding, and the per-conversation message
// exchange.
//
// # Credential lifecycle
//
// CredentialStore holds the single access credential; it is replaced
// atomically by login or a successful refresh and cleared entirely when a
// refresh fails. Refresher renews the credential using the HttpOnly refresh
// cookie carried by the transport's cookie jar, and coalesces concurrent
// renewal attempts: when several requests observe a 401 at once, exactly one
// renewal call goes out and every waiter shares its outcome.
//
// Dispatcher attaches the current token to outbound requests. A 401 answer
// triggers one refresh-and-retry cycle; a second 401, or a failed refresh,
// surfaces ErrAuthExpired and the user must log in again. Transport errors
// are never retried here; that policy belongs to the caller.
//
// # Streaming
//
// Decoder turns a response body into a sequence of StreamEvents. The wire
// carries line-framed JSON: each frame is "data: " followed by one JSON
// object; blank lines are keep-alives. Malformed lines are skipped, not
// fatal. A stream that closes without a complete or error frame ends with
// ErrIncompleteStream so a truncated answer is never mistaken for a full
// one.
//
// # Conversation continuity
//
// SessionTracker binds the server-issued conversation identity exactly once:
// the first valid UUID wins and later candidates, even identical repeats,
// are no-ops. A malformed candidate is a protocol error that aborts the
// exchange.
//
// Exchange coordinates one message round trip through the states
// Idle → Sending → Streaming → {Completed, Failed, Cancelled}. Chunks are
// republished as a growing partial answer while the stream runs; the final
// answer is only the text confirmed by a complete frame. Cancel interrupts
// the stream and discards buffered events.
package client
