// ABOUTME: Rotating opaque refresh tokens backed by the store
// ABOUTME: Issue creates or replaces a user's token; Redeem validates, rotates, and returns the owner

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/emberhq/ember-chat/internal/store"
)

// Refresh token errors
var (
	ErrRefreshInvalid = errors.New("refresh token invalid")
	ErrRefreshExpired = errors.New("refresh token expired")
)

// refreshTokenBytes is the entropy of a refresh token (hex doubles the length)
const refreshTokenBytes = 32

// RefreshManager issues and redeems opaque refresh tokens. A user holds at
// most one live token; every successful redeem rotates it so a stolen token
// stops working after its first use by either party.
type RefreshManager struct {
	store store.Store
	ttl   time.Duration
}

// NewRefreshManager creates a refresh token manager with the given lifetime
func NewRefreshManager(s store.Store, ttl time.Duration) *RefreshManager {
	return &RefreshManager{store: s, ttl: ttl}
}

// Issue generates a new refresh token for the user, replacing any existing one
func (m *RefreshManager) Issue(ctx context.Context, userID string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}

	err = m.store.UpsertRefreshToken(ctx, &store.RefreshToken{
		Token:    token,
		UserID:   userID,
		IssuedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}

	return token, nil
}

// Redeem validates a refresh token and rotates it. On success it returns the
// owning user ID and the replacement token. An expired token is deleted and
// reported as ErrRefreshExpired; an unknown token is ErrRefreshInvalid.
func (m *RefreshManager) Redeem(ctx context.Context, token string) (userID, next string, err error) {
	rt, err := m.store.GetRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrRefreshInvalid
		}
		return "", "", fmt.Errorf("looking up refresh token: %w", err)
	}

	if time.Since(rt.IssuedAt) > m.ttl {
		// Expired tokens are dead either way; remove the row
		_ = m.store.DeleteRefreshToken(ctx, token)
		return "", "", ErrRefreshExpired
	}

	next, err = m.Issue(ctx, rt.UserID)
	if err != nil {
		return "", "", err
	}

	return rt.UserID, next, nil
}

// Revoke removes all refresh tokens for a user (logout)
func (m *RefreshManager) Revoke(ctx context.Context, userID string) error {
	return m.store.DeleteRefreshTokensForUser(ctx, userID)
}

// randomToken returns a hex-encoded random token string
func randomToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
