// ABOUTME: HTTP server wiring for the ember-chat API
// ABOUTME: Builds the route mux, applies auth middleware, and owns shared handler dependencies

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/emberhq/ember-chat/internal/assistant"
	"github.com/emberhq/ember-chat/internal/auth"
	"github.com/emberhq/ember-chat/internal/dedupe"
	"github.com/emberhq/ember-chat/internal/store"
)

const (
	// refreshCookieName carries the opaque refresh token
	refreshCookieName = "ember_refresh"

	// dedupeTTL is how long idempotency keys are remembered
	dedupeTTL = 10 * time.Minute

	// dedupeMaxSize bounds the idempotency cache
	dedupeMaxSize = 10000
)

// Options configures a Server
type Options struct {
	Store           store.Store
	Streamer        assistant.Streamer
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	HistoryWindow   int
	Logger          *slog.Logger
}

// Server holds the handler dependencies for the chat API
type Server struct {
	store          store.Store
	streamer       assistant.Streamer
	verifier       *auth.JWTVerifier
	refresh        *auth.RefreshManager
	submissions    *dedupe.Cache
	broadcaster    *Broadcaster
	accessTokenTTL time.Duration
	historyWindow  int
	logger         *slog.Logger
}

// New creates a Server from the given options
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	return &Server{
		store:          opts.Store,
		streamer:       opts.Streamer,
		verifier:       auth.NewJWTVerifier(opts.JWTSecret),
		refresh:        auth.NewRefreshManager(opts.Store, opts.RefreshTokenTTL),
		submissions:    dedupe.New(dedupeTTL, dedupeMaxSize),
		broadcaster:    NewBroadcaster(logger),
		accessTokenTTL: opts.AccessTokenTTL,
		historyWindow:  opts.HistoryWindow,
		logger:         logger,
	}
}

// Handler builds the HTTP route mux with authentication applied
func (s *Server) Handler() http.Handler {
	authMiddleware := auth.HTTPAuthMiddleware(s.store, s.verifier)

	mux := http.NewServeMux()

	// Unauthenticated endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/refresh", s.handleRefresh)

	// Authenticated endpoints
	mux.Handle("/api/auth/logout", authMiddleware(http.HandlerFunc(s.handleLogout)))
	mux.Handle("/api/chat/stream", authMiddleware(http.HandlerFunc(s.handleChatStream)))
	mux.Handle("/api/chat/sessions", authMiddleware(http.HandlerFunc(s.handleListSessions)))
	mux.Handle("/api/chat/sessions/", authMiddleware(http.HandlerFunc(s.handleSessionRoutes)))
	mux.Handle("/api/chat/watch/", authMiddleware(http.HandlerFunc(s.handleWatch)))

	return mux
}

// Close releases server-held resources
func (s *Server) Close() {
	s.submissions.Close()
	s.broadcaster.Close()
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sendJSONError writes a JSON error response
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
