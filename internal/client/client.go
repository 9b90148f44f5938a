// ABOUTME: High-level API client assembling store, refresher, and dispatcher
// ABOUTME: Provides login, session management, and exchange construction

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Client is the assembled chat API client. It owns the credential store, the
// refresher, and the dispatcher, and shares them across every exchange so
// all concurrent conversation views fan in to one credential-renewal path.
type Client struct {
	baseURL    string
	http       *http.Client
	store      *CredentialStore
	refresher  *Refresher
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// SessionSummary is one conversation in the session list
type SessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// HistoryMessage is one message in a conversation's history
type HistoryMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// History is the full record of one conversation
type History struct {
	SessionID string           `json:"session_id"`
	Title     string           `json:"title"`
	Messages  []HistoryMessage `json:"messages"`
}

// New creates a client for the given server base URL. The HTTP transport
// carries a cookie jar so the refresh credential set at login travels to the
// refresh endpoint automatically.
func New(baseURL string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	httpClient := &http.Client{Jar: jar}
	store := NewCredentialStore()
	refresher := NewRefresher(baseURL, httpClient, store, logger)

	return &Client{
		baseURL:    baseURL,
		http:       httpClient,
		store:      store,
		refresher:  refresher,
		dispatcher: NewDispatcher(httpClient, store, refresher),
		logger:     logger,
	}, nil
}

// Credentials exposes the credential store, e.g. to register logout hooks
func (c *Client) Credentials() *CredentialStore {
	return c.store
}

// NewExchange creates a message exchange for one conversation view
func (c *Client) NewExchange(tracker *SessionTracker) *Exchange {
	return NewExchange(c.dispatcher, tracker, c.baseURL, c.logger)
}

// Login authenticates and stores the resulting access credential. The
// refresh credential arrives as a cookie and stays inside the jar.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("marshaling login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s", readErrorBody(resp))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}

	cred := Credential{AccessToken: body.AccessToken}
	if body.ExpiresIn > 0 {
		cred.Expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	c.store.Set(cred)

	c.logger.Debug("logged in", "username", username)
	return nil
}

// Logout revokes the refresh credential server-side and clears local state
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.dispatcher.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodPost, c.baseURL+"/api/auth/logout", nil)
	})
	if err != nil {
		// Local credentials are dropped even if the server is unreachable
		c.store.Clear()
		return err
	}
	resp.Body.Close()

	c.store.Clear()
	return nil
}

// ListSessions returns the user's conversations, newest first
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	resp, err := c.dispatcher.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/api/chat/sessions", nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing sessions: %s", readErrorBody(resp))
	}

	var body struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding session list: %w", err)
	}
	return body.Sessions, nil
}

// History fetches the full message history of a conversation
func (c *Client) History(ctx context.Context, sessionID string) (*History, error) {
	resp, err := c.dispatcher.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/api/chat/sessions/"+sessionID+"/history", nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching history: %s", readErrorBody(resp))
	}

	var history History
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return &history, nil
}

// DeleteSession removes a conversation and its messages
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.dispatcher.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodDelete, c.baseURL+"/api/chat/sessions/"+sessionID, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("deleting session: %s", readErrorBody(resp))
	}
	return nil
}

// RenameSession updates a conversation's title
func (c *Client) RenameSession(ctx context.Context, sessionID, title string) error {
	payload, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return fmt.Errorf("marshaling rename request: %w", err)
	}

	resp, err := c.dispatcher.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPatch, c.baseURL+"/api/chat/sessions/"+sessionID, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("renaming session: %s", readErrorBody(resp))
	}
	return nil
}
