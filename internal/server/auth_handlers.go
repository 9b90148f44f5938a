// ABOUTME: Login, refresh, and logout handlers for the chat API
// ABOUTME: Issues JWT access tokens and rotates the refresh cookie

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/emberhq/ember-chat/internal/auth"
	"github.com/emberhq/ember-chat/internal/store"
)

// loginRequest is the JSON request body for POST /api/auth/login
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the JSON response carrying a fresh access token
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// handleLogin verifies credentials and issues both tokens.
// The access token is returned in the body; the refresh token is set as an
// HttpOnly cookie so the transport carries it to /api/auth/refresh without
// the client ever reading it.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error("looking up user", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueTokens(w, r, user.ID)
}

// handleRefresh redeems the refresh cookie for a new access token.
// The cookie is rotated on every successful redeem.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		s.sendJSONError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	userID, next, err := s.refresh.Redeem(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshInvalid) || errors.Is(err, auth.ErrRefreshExpired) {
			s.clearRefreshCookie(w)
			s.sendJSONError(w, http.StatusUnauthorized, "refresh token rejected")
			return
		}
		s.logger.Error("redeeming refresh token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeTokenResponse(w, r, userID, next)
}

// handleLogout revokes the user's refresh token and clears the cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	authCtx := auth.MustFromContext(r.Context())
	if err := s.refresh.Revoke(r.Context(), authCtx.UserID); err != nil {
		s.logger.Error("revoking refresh tokens", "error", err, "user_id", authCtx.UserID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// issueTokens mints a fresh refresh token and writes both credentials
func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, userID string) {
	refreshToken, err := s.refresh.Issue(r.Context(), userID)
	if err != nil {
		s.logger.Error("issuing refresh token", "error", err, "user_id", userID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeTokenResponse(w, r, userID, refreshToken)
}

// writeTokenResponse sets the refresh cookie and returns the access token
func (s *Server) writeTokenResponse(w http.ResponseWriter, r *http.Request, userID, refreshToken string) {
	accessToken, err := s.verifier.Generate(userID, s.accessTokenTTL)
	if err != nil {
		s.logger.Error("generating access token", "error", err, "user_id", userID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/api/auth",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.accessTokenTTL / time.Second),
	})
}

// clearRefreshCookie expires the refresh cookie on the client
func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/auth",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
