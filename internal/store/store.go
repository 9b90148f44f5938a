// ABOUTME: Store interface and data types for ember-chat persistence
// ABOUTME: Defines User, ChatSession, ChatMessage, RefreshToken and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when trying to create a user whose username is taken
var ErrDuplicateUser = errors.New("user already exists")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents a registered account
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ChatSession represents one conversation thread owned by a user.
// The ID is a server-issued UUID; clients learn it from the first
// session_id frame of a streamed reply.
type ChatSession struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// ChatMessage represents a single message within a chat session
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// RefreshToken is the server-side record of an outstanding refresh credential.
// At most one row exists per user; rotation replaces it.
type RefreshToken struct {
	Token    string
	UserID   string
	IssuedAt time.Time
}

// Store defines the interface for ember-chat persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// Chat sessions
	CreateSession(ctx context.Context, session *ChatSession) error
	GetSession(ctx context.Context, id string) (*ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]*ChatSession, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error

	// Chat messages
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*ChatMessage, error)

	// Refresh tokens (one per user, rotated on use)
	UpsertRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteRefreshTokensForUser(ctx context.Context, userID string) error

	// Close releases database resources
	Close() error
}
