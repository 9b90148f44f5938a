// ABOUTME: Tests for session list, history, rename, and delete endpoints
// ABOUTME: Covers ownership checks and path dispatch

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhq/ember-chat/internal/store"
)

// seedSession creates a session with messages directly in the store
func seedSession(t *testing.T, env *testEnv, userID string, contents ...string) *store.ChatSession {
	t.Helper()
	ctx := context.Background()

	session := &store.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     "seeded",
		CreatedAt: time.Now(),
	}
	require.NoError(t, env.store.CreateSession(ctx, session))

	base := time.Now().Add(-time.Minute)
	for i, content := range contents {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		require.NoError(t, env.store.SaveMessage(ctx, &store.ChatMessage{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      role,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return session
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	seedSession(t, env, env.user.ID, "hello")
	seedSession(t, env, env.user.ID, "again")
	// Someone else's session must not appear
	seedSession(t, env, uuid.New().String(), "other")

	resp := env.doJSON(t, http.MethodGet, "/api/chat/sessions", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Sessions, 2)
}

func TestSessionHistory(t *testing.T) {
	env := newTestEnv(t)
	session := seedSession(t, env, env.user.ID, "question", "answer")

	resp := env.doJSON(t, http.MethodGet, "/api/chat/sessions/"+session.ID+"/history", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		SessionID string        `json:"session_id"`
		Title     string        `json:"title"`
		Messages  []messageView `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.Equal(t, session.ID, out.SessionID)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, store.RoleUser, out.Messages[0].Role)
	assert.Equal(t, "question", out.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, out.Messages[1].Role)
	assert.Equal(t, "answer", out.Messages[1].Content)
}

func TestSessionHistory_ForeignSession(t *testing.T) {
	env := newTestEnv(t)
	session := seedSession(t, env, uuid.New().String(), "secret")

	resp := env.doJSON(t, http.MethodGet, "/api/chat/sessions/"+session.ID+"/history", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRenameSession(t *testing.T) {
	env := newTestEnv(t)
	session := seedSession(t, env, env.user.ID, "hello")

	resp := env.doJSON(t, http.MethodPatch, "/api/chat/sessions/"+session.ID, map[string]string{
		"title": "renamed",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	updated, err := env.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
}

func TestRenameSession_EmptyTitle(t *testing.T) {
	env := newTestEnv(t)
	session := seedSession(t, env, env.user.ID, "hello")

	resp := env.doJSON(t, http.MethodPatch, "/api/chat/sessions/"+session.ID, map[string]string{
		"title": "   ",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	session := seedSession(t, env, env.user.ID, "hello", "hi")

	resp := env.doJSON(t, http.MethodDelete, "/api/chat/sessions/"+session.ID, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := env.store.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	msgs, err := env.store.GetMessages(context.Background(), session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages must be deleted with the session")
}

func TestSessionRoutes_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodDelete, "/api/chat/sessions/not-a-uuid", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionRoutes_UnknownSuffix(t *testing.T) {
	env := newTestEnv(t)
	session := seedSession(t, env, env.user.ID, "hello")

	resp := env.doJSON(t, http.MethodGet, "/api/chat/sessions/"+session.ID+"/bogus", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
