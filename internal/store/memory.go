// ABOUTME: In-memory Store implementation for tests and ephemeral deployments
// ABOUTME: Mirrors SQLiteStore semantics including refresh-token rotation and cascade deletes

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with plain maps. It is safe for concurrent use
// and is primarily intended for handler tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*User
	sessions      map[string]*ChatSession
	messages      map[string][]*ChatMessage // keyed by session ID
	refreshTokens map[string]*RefreshToken  // keyed by token value
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		sessions:      make(map[string]*ChatSession),
		messages:      make(map[string][]*ChatMessage),
		refreshTokens: make(map[string]*RefreshToken),
	}
}

// CreateUser inserts a new user record
func (m *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrDuplicateUser
		}
	}

	cp := *user
	m.users[user.ID] = &cp
	return nil
}

// GetUser retrieves a user by ID
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByUsername retrieves a user by username
func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CreateSession inserts a new chat session
func (m *MemoryStore) CreateSession(ctx context.Context, session *ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

// GetSession retrieves a chat session by ID
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *session
	return &cp, nil
}

// ListSessions returns all chat sessions owned by a user, newest first
func (m *MemoryStore) ListSessions(ctx context.Context, userID string) ([]*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			sessions = append(sessions, &cp)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	return sessions, nil
}

// UpdateSessionTitle changes the display title of a session
func (m *MemoryStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.Title = title
	return nil
}

// DeleteSession removes a session and its messages
func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// SaveMessage inserts a chat message
func (m *MemoryStore) SaveMessage(ctx context.Context, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	return nil
}

// GetMessages returns the most recent messages for a session in chronological
// order. A limit of 0 returns all messages.
func (m *MemoryStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]*ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}

	out := make([]*ChatMessage, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

// UpsertRefreshToken stores a refresh token, replacing any existing token for the same user
func (m *MemoryStore) UpsertRefreshToken(ctx context.Context, token *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for value, rt := range m.refreshTokens {
		if rt.UserID == token.UserID {
			delete(m.refreshTokens, value)
		}
	}

	cp := *token
	m.refreshTokens[token.Token] = &cp
	return nil
}

// GetRefreshToken retrieves a refresh token record by its value
func (m *MemoryStore) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

// DeleteRefreshToken removes a refresh token by its value
func (m *MemoryStore) DeleteRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.refreshTokens, token)
	return nil
}

// DeleteRefreshTokensForUser removes all refresh tokens for a user
func (m *MemoryStore) DeleteRefreshTokensForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for value, rt := range m.refreshTokens {
		if rt.UserID == userID {
			delete(m.refreshTokens, value)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}
