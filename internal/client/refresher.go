// ABOUTME: Credential renewal with fan-in of concurrent callers
// ABOUTME: At most one refresh network call is in flight regardless of caller count

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// Refresh errors
var (
	// ErrRefreshRejected means the server refused the renewal credential;
	// the user must log in again.
	ErrRefreshRejected = errors.New("refresh rejected")
)

// refreshTimeout bounds a single renewal network call
const refreshTimeout = 10 * time.Second

// Refresher renews an expired access credential. Concurrent callers that all
// hit a 401 at the same moment share one in-flight renewal and observe the
// same outcome; after resolution the next 401 starts a fresh operation.
type Refresher struct {
	baseURL string
	http    *http.Client
	store   *CredentialStore
	group   singleflight.Group
	logger  *slog.Logger
}

// NewRefresher creates a refresher. The http.Client must carry a cookie jar
// so the renewal credential travels with the request automatically.
func NewRefresher(baseURL string, httpClient *http.Client, store *CredentialStore, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		baseURL: baseURL,
		http:    httpClient,
		store:   store,
		logger:  logger.With("component", "refresher"),
	}
}

// Refresh obtains a new access credential. If a renewal is already in flight
// the caller awaits its outcome instead of starting another. On failure the
// credential store is cleared (full logout) and all waiters receive the same
// error.
func (r *Refresher) Refresh(ctx context.Context) (Credential, error) {
	result, err, shared := r.group.Do("refresh", func() (any, error) {
		return r.doRefresh()
	})
	if err != nil {
		return Credential{}, err
	}
	if shared {
		r.logger.Debug("joined in-flight refresh")
	}

	// The shared result may have landed after this caller's context expired
	if ctx.Err() != nil {
		return Credential{}, ctx.Err()
	}
	return result.(Credential), nil
}

// doRefresh performs the actual renewal network call. Runs at most once per
// in-flight operation; its own bounded timeout is independent of any caller's
// context so cancelling one waiter never aborts a refresh shared with others.
func (r *Refresher) doRefresh() (Credential, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/auth/refresh", nil)
	if err != nil {
		return Credential{}, fmt.Errorf("building refresh request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		r.store.Clear()
		return Credential{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("refresh rejected", "status", resp.StatusCode)
		r.store.Clear()
		return Credential{}, ErrRefreshRejected
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.store.Clear()
		return Credential{}, fmt.Errorf("decoding refresh response: %w", err)
	}
	if body.AccessToken == "" {
		r.store.Clear()
		return Credential{}, ErrRefreshRejected
	}

	cred := Credential{AccessToken: body.AccessToken}
	if body.ExpiresIn > 0 {
		cred.Expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	r.store.Set(cred)
	r.logger.Debug("access token refreshed")
	return cred, nil
}
