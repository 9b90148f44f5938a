// ABOUTME: Authenticated request dispatch with refresh-and-retry on 401
// ABOUTME: Retries at most once per logical call to avoid refresh loops

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthExpired means the access token was rejected and renewal failed;
// the caller must re-authenticate.
var ErrAuthExpired = errors.New("authentication expired")

// Dispatcher issues outbound API requests with the current credential
// attached. A 401 triggers one refresh-and-retry cycle; a second 401 on the
// retried request is terminal. Transport errors surface unretried; retry
// policy for those belongs to the caller.
type Dispatcher struct {
	http      *http.Client
	store     *CredentialStore
	refresher *Refresher
}

// NewDispatcher creates a dispatcher over the given credential store and
// refresher
func NewDispatcher(httpClient *http.Client, store *CredentialStore, refresher *Refresher) *Dispatcher {
	return &Dispatcher{
		http:      httpClient,
		store:     store,
		refresher: refresher,
	}
}

// Do issues the request produced by build with the current access token
// attached. build is called again for the retry because a request body can
// only be read once. The caller owns the returned response body.
func (d *Dispatcher) Do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	cred, ok := d.store.Get()
	if !ok {
		return nil, ErrAuthExpired
	}

	resp, err := d.send(ctx, build, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	// Token rejected: renew once and retry once
	cred, err = d.refresher.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	resp, err = d.send(ctx, build, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrAuthExpired
	}
	return resp, nil
}

// send builds a fresh request, attaches the token, and issues it
func (d *Dispatcher) send(ctx context.Context, build func() (*http.Request, error), token string) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}
