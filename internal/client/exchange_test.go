// ABOUTME: Tests for the message exchange coordinator
// ABOUTME: Covers the full stream lifecycle, cancellation, and protocol errors

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameWriter scripts the server side of a chat stream
type frameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newFrameWriter(t *testing.T, w http.ResponseWriter) *frameWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("response writer must support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	return &frameWriter{w: w, flusher: flusher}
}

func (fw *frameWriter) frame(json string) {
	fmt.Fprintf(fw.w, "data: %s\n\n", json)
	fw.flusher.Flush()
}

func (fw *frameWriter) raw(s string) {
	fmt.Fprint(fw.w, s)
	fw.flusher.Flush()
}

// newExchangeEnv builds an exchange against a scripted stream handler
func newExchangeEnv(t *testing.T, handler http.HandlerFunc) (*Exchange, *SessionTracker, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/stream", handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	store := NewCredentialStore()
	store.Set(Credential{AccessToken: "test-token"})
	refresher := NewRefresher(ts.URL, ts.Client(), store, nil)
	dispatcher := NewDispatcher(ts.Client(), store, refresher)

	tracker := NewSessionTracker()
	return NewExchange(dispatcher, tracker, ts.URL, nil), tracker, ts
}

func TestExchange_NewConversation(t *testing.T) {
	sessionID := uuid.New().String()

	exchange, tracker, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(fmt.Sprintf(`{"session_id":%q}`, sessionID))
		fw.frame(`{"chunk":"Hello"}`)
		fw.frame(`{"chunk":" there"}`)
		fw.frame(`{"complete":true}`)
	})

	var partials []string
	exchange.OnChunk = func(partial string) {
		partials = append(partials, partial)
	}

	answer, err := exchange.Send(context.Background(), "Hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello there", answer)
	assert.Equal(t, StateCompleted, exchange.State())
	assert.Equal(t, []string{"Hello", "Hello there"}, partials, "growing partial answer republished per chunk")

	id, bound := tracker.ID()
	require.True(t, bound)
	assert.Equal(t, sessionID, id.String())
}

func TestExchange_ReusesBoundSession(t *testing.T) {
	bound := uuid.New()

	var receivedSessionID string
	exchange, tracker, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		receivedSessionID = req.SessionID

		// Server re-announces the id; the tracker must treat it as a no-op
		fw := newFrameWriter(t, w)
		fw.frame(fmt.Sprintf(`{"session_id":%q}`, req.SessionID))
		fw.frame(`{"chunk":"ok"}`)
		fw.frame(`{"complete":true}`)
	})

	accepted, err := tracker.Bind(bound.String())
	require.NoError(t, err)
	require.True(t, accepted)

	answer, err := exchange.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)

	assert.Equal(t, bound.String(), receivedSessionID, "bound id attached to the request")

	id, _ := tracker.ID()
	assert.Equal(t, bound, id, "duplicate assignment is a no-op")
}

func TestExchange_EmptyMessageRejected(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be issued for an empty message")
	})

	for _, message := range []string{"", "   ", "\t\n"} {
		_, err := exchange.Send(context.Background(), message)
		assert.ErrorIs(t, err, ErrEmptyMessage, "message %q", message)
	}
	assert.Equal(t, StateIdle, exchange.State())
}

func TestExchange_ConcurrentSendRejected(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})

	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"slow"}`)
		close(firstStarted)
		<-release
		fw.frame(`{"complete":true}`)
	})

	done := make(chan error, 1)
	go func() {
		_, err := exchange.Send(context.Background(), "first")
		done <- err
	}()

	<-firstStarted

	// Second send while the first is streaming
	_, err := exchange.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrExchangeActive)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateCompleted, exchange.State())
}

func TestExchange_ErrorFrameFailsExchange(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"partial answer"}`)
		fw.frame(`{"error":"model overloaded"}`)
	})

	answer, err := exchange.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded", "failure reason surfaced verbatim")
	assert.Empty(t, answer, "partial text discarded on failure")
	assert.Equal(t, StateFailed, exchange.State())
}

func TestExchange_AbnormalCloseIsFailed(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"truncat"}`)
		// Connection ends with no terminal frame
	})

	answer, err := exchange.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrIncompleteStream)
	assert.Empty(t, answer, "silently truncated text must not be presented as final")
	assert.Equal(t, StateFailed, exchange.State())
}

func TestExchange_SilentStreamAborted(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"stall"}`)
		// Stop producing without closing the connection
		<-r.Context().Done()
	})
	exchange.IdleTimeout = 100 * time.Millisecond

	done := make(chan error, 1)
	var answer string
	go func() {
		var err error
		answer, err = exchange.Send(context.Background(), "hello")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrIncompleteStream, "a silent stream is an abnormal close")
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after the idle window elapsed")
	}

	assert.Empty(t, answer, "partial text discarded")
	assert.Equal(t, StateFailed, exchange.State())
}

func TestExchange_CompleteOutranksErrorOnOneFrame(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"answer"}`)
		fw.frame(`{"complete":true,"error":"stale failure"}`)
	})

	answer, err := exchange.Send(context.Background(), "hello")
	require.NoError(t, err, "completion wins when one frame carries both terminal fields")
	assert.Equal(t, "answer", answer)
	assert.Equal(t, StateCompleted, exchange.State())
}

func TestExchange_MalformedSessionIDAbortsExchange(t *testing.T) {
	exchange, tracker, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"session_id":"definitely-not-a-uuid"}`)
		fw.frame(`{"chunk":"should not matter"}`)
		fw.frame(`{"complete":true}`)
	})

	_, err := exchange.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrMalformedSessionID)
	assert.Equal(t, StateFailed, exchange.State())

	_, bound := tracker.ID()
	assert.False(t, bound, "malformed identity must not bind")
}

func TestExchange_MalformedFramesSkipped(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"Hel"}`)
		fw.raw("data: {broken json\n\n")
		fw.raw("noise line\n\n")
		fw.frame(`{"chunk":"lo"}`)
		fw.frame(`{"complete":true}`)
	})

	answer, err := exchange.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", answer)
}

func TestExchange_CancelMidStream(t *testing.T) {
	streaming := make(chan struct{})
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		fw.frame(`{"chunk":"first"}`)
		close(streaming)
		// Keep the stream open until the client goes away
		<-r.Context().Done()
	})

	done := make(chan error, 1)
	go func() {
		_, err := exchange.Send(context.Background(), "hello")
		done <- err
	}()

	<-streaming
	exchange.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Cancel")
	}

	assert.Equal(t, StateCancelled, exchange.State(), "no Completed transition after cancel")
}

func TestExchange_CancelBeforeTerminalSkipsBufferedFrames(t *testing.T) {
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		// Everything, including the terminal frame, is already buffered
		fw := newFrameWriter(t, w)
		for i := 0; i < 100; i++ {
			fw.frame(`{"chunk":"x"}`)
		}
		fw.frame(`{"complete":true}`)
	})

	var cancelOnce bool
	exchange.OnChunk = func(partial string) {
		if !cancelOnce {
			cancelOnce = true
			exchange.Cancel()
		}
	}

	_, err := exchange.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateCancelled, exchange.State())
}

func TestExchange_TransportErrorSurfaced(t *testing.T) {
	store := NewCredentialStore()
	store.Set(Credential{AccessToken: "token"})
	httpClient := &http.Client{Timeout: 200 * time.Millisecond}
	refresher := NewRefresher("http://127.0.0.1:1", httpClient, store, nil)
	dispatcher := NewDispatcher(httpClient, store, refresher)
	exchange := NewExchange(dispatcher, NewSessionTracker(), "http://127.0.0.1:1", nil)

	_, err := exchange.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, StateFailed, exchange.State())
}

func TestExchange_OrderedAccumulation(t *testing.T) {
	// Chunks ["Hel","lo, ","world"] then complete yield exactly "Hello, world"
	exchange, _, _ := newExchangeEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fw := newFrameWriter(t, w)
		for _, chunk := range []string{"Hel", "lo, ", "world"} {
			fw.frame(fmt.Sprintf(`{"chunk":%q}`, chunk))
		}
		fw.frame(`{"complete":true}`)
		// Anything after the terminal frame must not be applied
		fw.frame(`{"chunk":"IGNORED"}`)
	})

	answer, err := exchange.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", answer)
	assert.False(t, strings.Contains(answer, "IGNORED"))
}

func TestExchangeState_String(t *testing.T) {
	states := map[ExchangeState]string{
		StateIdle:      "idle",
		StateSending:   "sending",
		StateStreaming: "streaming",
		StateCompleted: "completed",
		StateFailed:    "failed",
		StateCancelled: "cancelled",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
