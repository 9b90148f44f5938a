// ABOUTME: Watch endpoint streaming in-progress reply frames to a second client
// ABOUTME: Subscribes to the broadcaster and relays frames for one session

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// watchKeepAliveInterval paces blank keep-alive lines on an idle watch stream
const watchKeepAliveInterval = 15 * time.Second

// handleWatch streams frames for a session as they are produced by another
// connection's chat stream. The watcher sees the same wire format as the
// originating client.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/chat/watch/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	if s.ownedSession(w, r, sessionID) == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	frames, watcherID := s.broadcaster.Watch(r.Context(), sessionID)
	defer s.broadcaster.Unwatch(sessionID, watcherID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	keepAlive := time.NewTicker(watchKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepAlive.C:
			// Blank line keeps intermediaries from timing out the connection
			fmt.Fprint(w, "\n\n")
			flusher.Flush()

		case frame, ok := <-frames:
			if !ok {
				return
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("marshaling frame", "error", err)
				continue
			}
			fmt.Fprintf(w, "%s%s\n\n", framePrefix, payload)
			flusher.Flush()
		}
	}
}
