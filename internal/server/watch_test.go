// ABOUTME: Tests for the watch endpoint
// ABOUTME: Verifies a second connection sees the frames of an in-progress reply

package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReceivesFramesFromChatStream(t *testing.T) {
	env := newTestEnv(t)
	env.streamer.ChunkDelay = 10 * time.Millisecond
	env.streamer.Reply("ping", "pong pong pong")

	session := seedSession(t, env, env.user.ID)

	// Open the watch stream first
	watchReq, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/chat/watch/"+session.ID, nil)
	require.NoError(t, err)
	watchReq.Header.Set("Authorization", "Bearer "+env.token)

	watchResp, err := env.ts.Client().Do(watchReq)
	require.NoError(t, err)
	defer watchResp.Body.Close()
	require.Equal(t, http.StatusOK, watchResp.StatusCode)

	// Collect watcher frames until the terminal frame arrives
	framesCh := make(chan []Frame, 1)
	go func() {
		var frames []Frame
		scanner := bufio.NewScanner(watchResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, framePrefix) {
				continue
			}
			var frame Frame
			if json.Unmarshal([]byte(strings.TrimPrefix(line, framePrefix)), &frame) != nil {
				continue
			}
			frames = append(frames, frame)
			if frame.Complete || frame.Error != "" {
				break
			}
		}
		framesCh <- frames
	}()

	// Give the watcher time to register before the reply starts
	time.Sleep(50 * time.Millisecond)

	resp := env.doJSON(t, http.MethodPost, "/api/chat/stream", map[string]string{
		"message":    "ping",
		"session_id": session.ID,
	})
	readFrames(t, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case frames := <-framesCh:
		require.NotEmpty(t, frames, "watcher saw no frames")

		var text strings.Builder
		var sawComplete bool
		for _, frame := range frames {
			text.WriteString(frame.Chunk)
			if frame.Complete {
				sawComplete = true
			}
		}
		assert.Equal(t, "pong pong pong", text.String())
		assert.True(t, sawComplete, "watcher must see the complete frame")
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for watcher frames")
	}
}

func TestWatch_ForeignSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	other := seedSession(t, env, "someone-else", "secret")

	resp := env.doJSON(t, http.MethodGet, "/api/chat/watch/"+other.ID, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWatch_InvalidSessionID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/api/chat/watch/nope", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
