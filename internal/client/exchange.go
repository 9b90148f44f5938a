// ABOUTME: Coordinator for one message exchange: send, stream, accumulate, finish
// ABOUTME: State machine Idle→Sending→Streaming→{Completed,Failed,Cancelled} with cancellation

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// defaultIdleTimeout treats a silent stream as abnormally closed
const defaultIdleTimeout = 90 * time.Second

// Exchange errors
var (
	// ErrEmptyMessage rejects a submit with no content after trimming
	ErrEmptyMessage = errors.New("message is empty")

	// ErrExchangeActive rejects a second Send while one is in flight.
	// Interleaving two streams into one conversation view would scramble
	// partial answers, so concurrent sends are refused rather than queued.
	ErrExchangeActive = errors.New("message exchange already in progress")

	// ErrCancelled reports a caller-initiated cancellation
	ErrCancelled = errors.New("exchange cancelled")
)

// ExchangeState is the lifecycle position of a message exchange
type ExchangeState int

// Exchange lifecycle states
const (
	StateIdle ExchangeState = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

// String implements fmt.Stringer
func (s ExchangeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Exchange coordinates one user-submitted message through the full stream
// lifecycle: it sends the message, decodes the reply stream, forwards the
// session identity to the tracker, republishes the growing partial answer,
// and reports the terminal outcome. One Exchange serves one conversation
// view; a Send while another is active is rejected.
type Exchange struct {
	dispatcher *Dispatcher
	tracker    *SessionTracker
	baseURL    string
	logger     *slog.Logger

	// OnChunk, when set, receives the accumulated partial answer after each
	// chunk. This is the only point where not-yet-final output is observable.
	OnChunk func(partial string)

	// IdleTimeout aborts a stream that stops producing events without
	// closing. Such a stream is reported as an abnormal close. Zero
	// disables the watchdog.
	IdleTimeout time.Duration

	mu     sync.Mutex
	state  ExchangeState
	cancel context.CancelFunc
}

// NewExchange creates an idle exchange bound to one conversation view
func NewExchange(dispatcher *Dispatcher, tracker *SessionTracker, baseURL string, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchange{
		dispatcher:  dispatcher,
		tracker:     tracker,
		baseURL:     baseURL,
		logger:      logger.With("component", "exchange"),
		IdleTimeout: defaultIdleTimeout,
		state:       StateIdle,
	}
}

// State returns the current lifecycle state
func (e *Exchange) State() ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cancel aborts an in-flight exchange. The stream read is interrupted and no
// further events are applied, even if already buffered. A no-op once the
// exchange reached a terminal state.
func (e *Exchange) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSending && e.state != StateStreaming {
		return
	}
	e.state = StateCancelled
	if e.cancel != nil {
		e.cancel()
	}
}

// abortStream tears down the in-flight request without recording a
// cancellation, so the exchange reports a failure instead
func (e *Exchange) abortStream() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Send submits a message and streams the assistant reply. It blocks until
// the exchange reaches a terminal state and returns the complete answer on
// success. Partial text from a failed or cancelled exchange is discarded so
// a silently truncated answer is never presented as final.
func (e *Exchange) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	streamCtx, err := e.begin(ctx)
	if err != nil {
		return "", err
	}

	answer, err := e.run(streamCtx, message)
	e.finish(err)
	return answer, err
}

// begin transitions Idle→Sending and installs the cancellation hook
func (e *Exchange) begin(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateSending || e.state == StateStreaming {
		return nil, ErrExchangeActive
	}

	streamCtx, cancel := context.WithCancel(ctx)
	e.state = StateSending
	e.cancel = cancel
	return streamCtx, nil
}

// run performs the exchange body: request, stream, accumulate
func (e *Exchange) run(ctx context.Context, message string) (string, error) {
	defer func() {
		e.mu.Lock()
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.mu.Unlock()
	}()

	// A bound conversation identity rides along; its absence tells the
	// server to start a new conversation
	body := map[string]string{"message": message}
	if id, ok := e.tracker.ID(); ok {
		body["session_id"] = id.String()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	// Fresh key per logical send; the 401 retry reuses it harmlessly because
	// the rejected attempt never reached the submission guard
	idempotencyKey := uuid.New().String()

	resp, err := e.dispatcher.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, e.baseURL+"/api/chat/stream", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stream request failed: %s", readErrorBody(resp))
	}

	e.setState(StateSending, StateStreaming)

	return e.consume(NewDecoder(resp.Body, e.logger))
}

// consume applies decoded events in arrival order until a terminal event,
// abnormal close, idle expiry, or cancellation.
func (e *Exchange) consume(decoder *Decoder) (string, error) {
	var answer strings.Builder

	// A stream that goes silent without closing would otherwise block the
	// read forever. The watchdog aborts it; the outcome is the same as a
	// transport-level abnormal close.
	var idle atomic.Bool
	var watchdog *time.Timer
	if e.IdleTimeout > 0 {
		watchdog = time.AfterFunc(e.IdleTimeout, func() {
			idle.Store(true)
			e.logger.Warn("stream idle, aborting", "timeout", e.IdleTimeout)
			e.abortStream()
		})
		defer watchdog.Stop()
	}

	for {
		// Cancellation wins over buffered events
		if e.State() == StateCancelled {
			return "", ErrCancelled
		}

		event, err := decoder.Next()
		if err != nil {
			if e.State() == StateCancelled {
				return "", ErrCancelled
			}
			if errors.Is(err, ErrIncompleteStream) || idle.Load() {
				// Transport died mid-turn; the partial text is discarded
				return "", ErrIncompleteStream
			}
			if err == io.EOF {
				// Defensive: terminal events return before EOF
				return answer.String(), nil
			}
			return "", fmt.Errorf("reading stream: %w", err)
		}

		if e.State() == StateCancelled {
			return "", ErrCancelled
		}

		if watchdog != nil {
			watchdog.Reset(e.IdleTimeout)
		}

		if event.SessionID != "" {
			accepted, err := e.tracker.Bind(event.SessionID)
			if err != nil {
				// A malformed identity would corrupt continuity; abort
				return "", err
			}
			if accepted {
				e.logger.Debug("conversation bound", "session_id", event.SessionID)
			}
		}

		if event.Chunk != "" {
			answer.WriteString(event.Chunk)
			if e.OnChunk != nil {
				e.OnChunk(answer.String())
			}
		}

		// On a frame carrying both terminal fields, completion wins
		if event.Complete {
			return answer.String(), nil
		}
		if event.Error != "" {
			return "", fmt.Errorf("assistant error: %s", event.Error)
		}
	}
}

// finish records the terminal state unless cancellation already did
func (e *Exchange) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateCancelled {
		return
	}
	if err != nil {
		e.state = StateFailed
		return
	}
	e.state = StateCompleted
}

// setState transitions from one expected state to another, skipping the
// transition if something else (cancellation) moved the state first
func (e *Exchange) setState(from, to ExchangeState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == from {
		e.state = to
	}
}

// readErrorBody extracts the error message from a JSON error response
func readErrorBody(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return resp.Status
}
