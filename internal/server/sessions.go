// ABOUTME: Chat session management endpoints: list, history, rename, delete
// ABOUTME: Routes /api/chat/sessions and the per-session subpaths beneath it

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/emberhq/ember-chat/internal/auth"
	"github.com/emberhq/ember-chat/internal/store"
)

// sessionSummary is one entry in the session list response
type sessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// messageView is one entry in the session history response
type messageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// handleListSessions returns the caller's chat sessions, newest first
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	authCtx := auth.MustFromContext(r.Context())

	sessions, err := s.store.ListSessions(r.Context(), authCtx.UserID)
	if err != nil {
		s.logger.Error("listing sessions", "error", err, "user_id", authCtx.UserID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionSummary{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sessions": out})
}

// handleSessionRoutes dispatches /api/chat/sessions/{id} and
// /api/chat/sessions/{id}/history by method and path suffix
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
	if rest == "" {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	parts := strings.Split(rest, "/")
	sessionID := parts[0]

	if _, err := uuid.Parse(sessionID); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid session ID format")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
		s.handleSessionHistory(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteSession(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		s.handleRenameSession(w, r, sessionID)
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// ownedSession loads a session and checks it belongs to the caller.
// Writes the error response itself and returns nil on failure.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request, sessionID string) *store.ChatSession {
	authCtx := auth.MustFromContext(r.Context())

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "chat session not found")
			return nil
		}
		s.logger.Error("loading session", "error", err, "session_id", sessionID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	if session.UserID != authCtx.UserID {
		s.sendJSONError(w, http.StatusNotFound, "chat session not found")
		return nil
	}
	return session
}

// handleSessionHistory returns the full message history of a session in
// chronological order
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	session := s.ownedSession(w, r, sessionID)
	if session == nil {
		return
	}

	messages, err := s.store.GetMessages(r.Context(), sessionID, 0)
	if err != nil {
		s.logger.Error("loading messages", "error", err, "session_id", sessionID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		out = append(out, messageView{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session_id": session.ID,
		"title":      session.Title,
		"messages":   out,
	})
}

// handleDeleteSession removes a session and its messages
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if s.ownedSession(w, r, sessionID) == nil {
		return
	}

	if err := s.store.DeleteSession(r.Context(), sessionID); err != nil {
		s.logger.Error("deleting session", "error", err, "session_id", sessionID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("deleted chat session", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handleRenameSession updates a session's title
func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if s.ownedSession(w, r, sessionID) == nil {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		s.sendJSONError(w, http.StatusBadRequest, "title required")
		return
	}
	if len(req.Title) > titleMaxLen {
		req.Title = req.Title[:titleMaxLen]
	}

	if err := s.store.UpdateSessionTitle(r.Context(), sessionID, req.Title); err != nil {
		s.logger.Error("renaming session", "error", err, "session_id", sessionID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
