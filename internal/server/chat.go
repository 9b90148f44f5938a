// ABOUTME: Streaming chat handler emitting line-framed JSON events
// ABOUTME: Resolves the session, persists messages, and streams assistant chunks with flushes

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emberhq/ember-chat/internal/assistant"
	"github.com/emberhq/ember-chat/internal/auth"
	"github.com/emberhq/ember-chat/internal/store"
)

const (
	// framePrefix starts every event line on the wire
	framePrefix = "data: "

	// maxIdempotencyKeyLen bounds the Idempotency-Key header
	maxIdempotencyKeyLen = 100

	// titleMaxLen truncates the auto-generated session title
	titleMaxLen = 50
)

// chatRequest is the JSON request body for POST /api/chat/stream
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// handleChatStream accepts a user message and streams the assistant reply as
// line-framed JSON events. A new conversation gets its server-issued session
// ID in the first frame; chunks, a completion marker, or an error follow.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	authCtx := auth.MustFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message required")
		return
	}

	// Absorb duplicate submissions (client retry after a dropped stream)
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		if len(key) > maxIdempotencyKeyLen {
			s.sendJSONError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}
		if s.submissions.Remember(authCtx.UserID + "|" + key) {
			s.sendJSONError(w, http.StatusConflict, "duplicate submission")
			return
		}
	}

	// Check streaming support before any frame is written (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Resolve or create the chat session. Malformed and foreign session IDs
	// are rejected before the stream opens.
	session, isNew, errStatus, errMsg := s.resolveSession(r, authCtx, req)
	if errMsg != "" {
		s.sendJSONError(w, errStatus, errMsg)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// A brand-new conversation learns its identity in the first frame
	if isNew {
		s.writeFrame(w, flusher, session.ID, Frame{SessionID: session.ID})
	}

	ctx := r.Context()

	// Persist the user message before generation starts; history is the
	// source of truth, not a side effect of a successful reply
	userMsg := &store.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      store.RoleUser,
		Content:   req.Message,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		s.logger.Error("saving user message", "error", err, "session_id", session.ID)
		s.writeFrame(w, flusher, session.ID, Frame{Error: "failed to save message"})
		return
	}

	// Assemble the recent-window context, excluding the message just saved
	history, err := s.store.GetMessages(ctx, session.ID, s.historyWindow)
	if err != nil {
		s.logger.Error("loading history", "error", err, "session_id", session.ID)
		s.writeFrame(w, flusher, session.ID, Frame{Error: "failed to load history"})
		return
	}
	window := make([]assistant.Message, 0, len(history))
	for _, msg := range history {
		if msg.ID == userMsg.ID {
			continue
		}
		window = append(window, assistant.Message{Role: msg.Role, Content: msg.Content})
	}

	chunks, err := s.streamer.Stream(ctx, window, req.Message)
	if err != nil {
		s.logger.Error("starting generation", "error", err, "session_id", session.ID)
		s.writeFrame(w, flusher, session.ID, Frame{Error: "assistant unavailable"})
		return
	}

	s.streamReply(w, flusher, r, session.ID, chunks)
}

// resolveSession returns the session for the request, creating one when no
// session_id was supplied. On failure the status and message describe the
// rejection.
func (s *Server) resolveSession(r *http.Request, authCtx *auth.AuthContext, req chatRequest) (session *store.ChatSession, isNew bool, errStatus int, errMsg string) {
	ctx := r.Context()

	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return nil, false, http.StatusBadRequest, "invalid session ID format"
		}

		session, err := s.store.GetSession(ctx, id.String())
		if err != nil || session.UserID != authCtx.UserID {
			// Not-found and foreign sessions are indistinguishable to the caller
			return nil, false, http.StatusNotFound, "chat session not found"
		}
		return session, false, 0, ""
	}

	session = &store.ChatSession{
		ID:        uuid.New().String(),
		UserID:    authCtx.UserID,
		Title:     deriveTitle(req.Message),
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		s.logger.Error("creating chat session", "error", err)
		return nil, false, http.StatusInternalServerError, "internal server error"
	}

	s.logger.Info("created chat session", "session_id", session.ID, "user_id", authCtx.UserID)
	return session, true, 0, ""
}

// streamReply forwards assistant chunks onto the wire, accumulating the full
// reply for persistence and ending with a terminal frame.
func (s *Server) streamReply(w http.ResponseWriter, flusher http.Flusher, r *http.Request, sessionID string, chunks <-chan assistant.Chunk) {
	ctx := r.Context()
	var full strings.Builder

	for {
		select {
		case <-ctx.Done():
			// Client went away mid-reply; nothing left to write
			s.logger.Debug("stream cancelled by client", "session_id", sessionID)
			return

		case chunk, ok := <-chunks:
			if !ok {
				// Generation complete; persist and signal end of turn
				s.persistReply(sessionID, full.String())
				s.writeFrame(w, flusher, sessionID, Frame{Complete: true})
				return
			}

			if chunk.Err != nil {
				s.logger.Error("generation failed", "error", chunk.Err, "session_id", sessionID)
				s.writeFrame(w, flusher, sessionID, Frame{Error: "assistant temporarily unavailable"})
				return
			}

			full.WriteString(chunk.Text)
			s.writeFrame(w, flusher, sessionID, Frame{Chunk: chunk.Text})
		}
	}
}

// persistReply saves the accumulated assistant reply. Uses a fresh context so
// a client disconnect between the last chunk and completion does not lose the
// reply.
func (s *Server) persistReply(sessionID, content string) {
	if content == "" {
		return
	}
	err := s.store.SaveMessage(context.Background(), &store.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      store.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("saving assistant message", "error", err, "session_id", sessionID)
	}
}

// writeFrame writes a single line-framed JSON event, flushes it, and mirrors
// it to watchers of the session.
func (s *Server) writeFrame(w http.ResponseWriter, flusher http.Flusher, sessionID string, frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshaling frame", "error", err)
		return
	}

	fmt.Fprintf(w, "%s%s\n\n", framePrefix, payload)
	flusher.Flush()

	s.broadcaster.Publish(sessionID, frame)
}

// deriveTitle produces a session title from the first message
func deriveTitle(message string) string {
	if len(message) <= 3 {
		return "New Chat"
	}
	if len(message) > titleMaxLen {
		return message[:titleMaxLen]
	}
	return message
}
