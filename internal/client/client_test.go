// ABOUTME: Integration tests running the client against the real server package
// ABOUTME: Covers login, streaming exchange, and mid-session token expiry

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberhq/ember-chat/internal/assistant"
	"github.com/emberhq/ember-chat/internal/server"
	"github.com/emberhq/ember-chat/internal/store"
)

// newIntegrationEnv runs the real server with a memory store and returns a
// client pointed at it. accessTTL controls how quickly tokens expire; wrap,
// when non-nil, decorates the server handler (e.g. to count requests).
func newIntegrationEnv(t *testing.T, accessTTL time.Duration, wrap func(http.Handler) http.Handler) (*Client, *assistant.Scripted, *httptest.Server) {
	t.Helper()

	memStore := store.NewMemoryStore()
	streamer := assistant.NewScripted(0)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, memStore.CreateUser(context.Background(), &store.User{
		ID:           uuid.New().String(),
		Username:     "alice",
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}))

	srv := server.New(server.Options{
		Store:           memStore,
		Streamer:        streamer,
		JWTSecret:       []byte("integration-secret"),
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Hour,
		HistoryWindow:   20,
	})
	t.Cleanup(srv.Close)

	handler := srv.Handler()
	if wrap != nil {
		handler = wrap(handler)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, nil)
	require.NoError(t, err)
	// Reuse the test server's client transport but keep our cookie jar
	c.http.Transport = ts.Client().Transport

	return c, streamer, ts
}

func TestClient_LoginAndChat(t *testing.T) {
	c, streamer, _ := newIntegrationEnv(t, time.Minute, nil)
	streamer.Reply("hello", "Hi from the assistant")

	require.NoError(t, c.Login(context.Background(), "alice", "secret123"))

	tracker := NewSessionTracker()
	exchange := c.NewExchange(tracker)

	answer, err := exchange.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi from the assistant", answer)

	// The server-issued identity is bound
	id, bound := tracker.ID()
	require.True(t, bound, "new conversation must bind a session id")

	// Follow-up requests correlate through the bound id
	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id.String(), sessions[0].ID)

	history, err := c.History(context.Background(), id.String())
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "hello", history.Messages[0].Content)
	assert.Equal(t, "Hi from the assistant", history.Messages[1].Content)
}

func TestClient_SecondTurnSameConversation(t *testing.T) {
	c, _, _ := newIntegrationEnv(t, time.Minute, nil)
	require.NoError(t, c.Login(context.Background(), "alice", "secret123"))

	tracker := NewSessionTracker()

	// Each turn is its own exchange; the tracker carries continuity
	first := c.NewExchange(tracker)
	_, err := first.Send(context.Background(), "turn one")
	require.NoError(t, err)

	boundID, ok := tracker.ID()
	require.True(t, ok)

	second := c.NewExchange(tracker)
	_, err = second.Send(context.Background(), "turn two")
	require.NoError(t, err)

	// Still the same conversation
	id, _ := tracker.ID()
	assert.Equal(t, boundID, id)

	history, err := c.History(context.Background(), id.String())
	require.NoError(t, err)
	assert.Len(t, history.Messages, 4)
}

func TestClient_ShortTokenRefresh(t *testing.T) {
	var refreshCalls atomic.Int64
	countRefreshes := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/auth/refresh" {
				refreshCalls.Add(1)
			}
			next.ServeHTTP(w, r)
		})
	}

	c, streamer, _ := newIntegrationEnv(t, 150*time.Millisecond, countRefreshes)
	streamer.Reply("later", "refreshed and streaming")

	require.NoError(t, c.Login(context.Background(), "alice", "secret123"))

	// Let the access token expire, then use the API: the dispatcher must
	// renew once and retry
	time.Sleep(300 * time.Millisecond)

	exchange := c.NewExchange(NewSessionTracker())
	answer, err := exchange.Send(context.Background(), "later")
	require.NoError(t, err)
	assert.Equal(t, "refreshed and streaming", answer)
	assert.Equal(t, int64(1), refreshCalls.Load(), "exactly one renewal call")
}

func TestClient_LogoutKillsRefresh(t *testing.T) {
	c, _, _ := newIntegrationEnv(t, 150*time.Millisecond, nil)
	require.NoError(t, c.Login(context.Background(), "alice", "secret123"))

	var loggedOut bool
	c.Credentials().OnClear(func() { loggedOut = true })

	require.NoError(t, c.Logout(context.Background()))
	assert.True(t, loggedOut)

	// With no credential and a revoked refresh token, API calls fail
	time.Sleep(200 * time.Millisecond)
	_, err := c.ListSessions(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestClient_DeleteAndRename(t *testing.T) {
	c, _, _ := newIntegrationEnv(t, time.Minute, nil)
	require.NoError(t, c.Login(context.Background(), "alice", "secret123"))

	tracker := NewSessionTracker()
	_, err := c.NewExchange(tracker).Send(context.Background(), "make a session")
	require.NoError(t, err)
	id, _ := tracker.ID()

	require.NoError(t, c.RenameSession(context.Background(), id.String(), "renamed"))
	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "renamed", sessions[0].Title)

	require.NoError(t, c.DeleteSession(context.Background(), id.String()))
	sessions, err = c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
