// ABOUTME: In-memory fan-out of stream frames for cross-client awareness
// ABOUTME: Publishes the frames of an in-progress reply to watchers of the same session

package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// watcherBufferSize is the channel buffer for each watcher
	watcherBufferSize = 64
)

// Frame is one unit of the server-to-client event stream. All fields are
// optional on the wire; at least one is set per frame.
type Frame struct {
	SessionID string `json:"session_id,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Complete  bool   `json:"complete,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Broadcaster provides in-memory pub/sub of Frames keyed by chat session ID.
// The chat handler publishes every frame it writes to the requesting client;
// watchers (another tab on the same conversation) receive the same frames as
// they are produced.
type Broadcaster struct {
	mu       sync.RWMutex
	watchers map[string]map[string]chan Frame // sessionID -> watcherID -> ch
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		watchers: make(map[string]map[string]chan Frame),
		logger:   logger.With("component", "broadcaster"),
	}
}

// Watch registers a watcher for frames on the given session. Returns a
// channel that receives frames and a watcher ID for later removal. The
// registration is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Watch(ctx context.Context, sessionID string) (<-chan Frame, string) {
	watcherID := uuid.New().String()
	ch := make(chan Frame, watcherBufferSize)

	b.mu.Lock()
	if _, ok := b.watchers[sessionID]; !ok {
		b.watchers[sessionID] = make(map[string]chan Frame)
	}
	b.watchers[sessionID][watcherID] = ch
	b.mu.Unlock()

	b.logger.Debug("watcher added", "session_id", sessionID, "watcher_id", watcherID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unwatch(sessionID, watcherID)
	}()

	return ch, watcherID
}

// Unwatch removes a watcher registration
func (b *Broadcaster) Unwatch(sessionID, watcherID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.watchers[sessionID]
	if !ok {
		return
	}
	if ch, ok := subs[watcherID]; ok {
		delete(subs, watcherID)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.watchers, sessionID)
	}
}

// Publish sends a frame to all watchers of the given session.
// Non-blocking: frames are dropped for watchers whose channels are full.
// The read lock is held through the sends so Unwatch cannot close a
// channel mid-publish.
func (b *Broadcaster) Publish(sessionID string, frame Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.watchers[sessionID] {
		select {
		case ch <- frame:
		default:
			b.logger.Debug("dropping frame for slow watcher", "session_id", sessionID)
		}
	}
}

// Close removes all watchers
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.watchers {
		for watcherID, ch := range subs {
			delete(subs, watcherID)
			close(ch)
		}
		delete(b.watchers, sessionID)
	}
}
