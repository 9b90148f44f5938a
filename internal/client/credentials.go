// ABOUTME: In-process credential store for the chat client
// ABOUTME: Atomic read/replace of the access token plus logout notification

package client

import (
	"sync"
	"time"
)

// Credential is the access token authorizing API calls. A zero Expiry means
// the lifetime is unknown to the client; the server's 401 is authoritative
// either way.
type Credential struct {
	AccessToken string
	Expiry      time.Time
}

// Valid reports whether the credential carries a token
func (c Credential) Valid() bool {
	return c.AccessToken != ""
}

// CredentialStore is the single source of truth for "am I authenticated".
// Reads and replacements are atomic: a reader observes either the pre-refresh
// or the post-refresh credential, never a torn intermediate value.
type CredentialStore struct {
	mu         sync.RWMutex
	credential Credential
	onClear    []func()
}

// NewCredentialStore creates an empty credential store
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Get returns the current credential and whether one is held
func (s *CredentialStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential, s.credential.Valid()
}

// Set replaces the credential after a successful login or refresh
func (s *CredentialStore) Set(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = c
}

// Clear drops the credential and fires the registered logout callbacks.
// Called on refresh failure or explicit logout; after Clear the user must
// re-authenticate.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	s.credential = Credential{}
	callbacks := make([]func(), len(s.onClear))
	copy(callbacks, s.onClear)
	s.mu.Unlock()

	// Callbacks run outside the lock; they may call back into the store
	for _, fn := range callbacks {
		fn()
	}
}

// OnClear registers a callback fired whenever the store is cleared. Used to
// redirect the user to re-authentication when a refresh fails.
func (s *CredentialStore) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}
