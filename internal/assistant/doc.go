// Package assistant abstracts the reply-generating model behind a streaming
// interface.
//
// The Streamer contract mirrors how model SDKs deliver text: a channel of
// chunks, closed on completion, with cancellation via context. The chat
// handler consumes chunks and frames them onto the wire without caring which
// backend produced them.
//
// Scripted is the bundled implementation: deterministic, offline, and paced,
// which is what the server tests and local development need. Production
// deployments plug in a real model client behind the same interface.
package assistant
