// ABOUTME: Deterministic local Streamer used for development and tests
// ABOUTME: Echoes the prompt word by word with optional pacing between chunks

package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Scripted is a local Streamer that produces a deterministic reply without
// calling an external model. If a canned reply is registered for the prompt
// it is used; otherwise the reply echoes the prompt. Replies are emitted one
// word at a time to exercise the same chunking behavior a real model backend
// produces.
type Scripted struct {
	// ChunkDelay paces emission between chunks. Zero means no delay.
	ChunkDelay time.Duration

	replies map[string]string
}

// NewScripted creates a Scripted streamer with no canned replies
func NewScripted(chunkDelay time.Duration) *Scripted {
	return &Scripted{
		ChunkDelay: chunkDelay,
		replies:    make(map[string]string),
	}
}

// Reply registers a canned reply for an exact prompt
func (s *Scripted) Reply(prompt, reply string) {
	s.replies[prompt] = reply
}

// Stream implements Streamer
func (s *Scripted) Stream(ctx context.Context, history []Message, prompt string) (<-chan Chunk, error) {
	reply, ok := s.replies[prompt]
	if !ok {
		reply = fmt.Sprintf("You said: %s", prompt)
	}

	words := strings.Fields(reply)
	ch := make(chan Chunk)

	go func() {
		defer close(ch)
		for i, word := range words {
			text := word
			if i < len(words)-1 {
				text += " "
			}

			if s.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.ChunkDelay):
				}
			}

			select {
			case <-ctx.Done():
				return
			case ch <- Chunk{Text: text}:
			}
		}
	}()

	return ch, nil
}
