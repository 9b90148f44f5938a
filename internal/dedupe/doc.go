// Package dedupe provides a TTL cache for absorbing duplicate message
// submissions.
//
// # Overview
//
// Clients attach an idempotency key (a UUID minted per logical message) to
// chat submissions. The server remembers keys for a short window; a
// resubmission with a key already remembered is answered with 409 instead of
// generating a second assistant reply.
//
// # Properties
//
//   - Remember is check-and-mark in one critical section, so concurrent
//     duplicates cannot both pass
//   - Entries expire after a TTL and are also bounded by a maximum size with
//     oldest-first eviction
//   - A background goroutine sweeps expired entries; Close stops it
package dedupe
