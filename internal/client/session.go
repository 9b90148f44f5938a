// ABOUTME: Session continuity tracker binding a server-issued conversation identity
// ABOUTME: First valid UUID wins; duplicates are no-ops; malformed IDs are protocol errors

package client

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrMalformedSessionID means the server offered a session identity that is
// not a canonical UUID. Trusting it would corrupt conversation continuity,
// so the exchange must abort rather than silently accept.
var ErrMalformedSessionID = errors.New("malformed session ID")

// SessionTracker owns the client's notion of "which conversation am I in".
// The identity is bound exactly once: the first valid candidate is accepted
// and every later candidate, including identical repeats from overlapping or
// retried streams, is a rejected no-op.
type SessionTracker struct {
	mu    sync.Mutex
	id    uuid.UUID
	bound bool
	title string
}

// NewSessionTracker creates a tracker with no bound identity
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{}
}

// Bind offers a candidate identity. Returns true only for the first valid
// candidate; false for any later one. A candidate that is not a canonical
// UUID returns ErrMalformedSessionID.
func (t *SessionTracker) Bind(candidate string) (bool, error) {
	id, err := uuid.Parse(candidate)
	if err != nil {
		return false, ErrMalformedSessionID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bound {
		return false, nil
	}
	t.id = id
	t.bound = true
	return true, nil
}

// ID returns the bound identity and whether one has been bound
func (t *SessionTracker) ID() (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id, t.bound
}

// SetTitle records the conversation title for display
func (t *SessionTracker) SetTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.title = title
}

// Title returns the recorded conversation title
func (t *SessionTracker) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}
