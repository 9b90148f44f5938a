// ABOUTME: Assistant backend interface producing streamed reply chunks
// ABOUTME: Defines Message/Chunk types and the Streamer contract used by the chat handler

package assistant

import (
	"context"
)

// Message is one turn of conversation context passed to the backend
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Chunk is one streamed fragment of an assistant reply. Err is set on the
// final chunk when generation failed partway; the channel is closed after a
// terminal chunk either way.
type Chunk struct {
	Text string
	Err  error
}

// Streamer generates an assistant reply for the given prompt and history,
// delivered incrementally over the returned channel. The channel is closed
// when the reply is complete or the context is cancelled. Errors that occur
// before any chunk is produced are returned directly.
type Streamer interface {
	Stream(ctx context.Context, history []Message, prompt string) (<-chan Chunk, error)
}
