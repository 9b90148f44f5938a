// Package store provides persistence for ember-chat.
//
// # Overview
//
// The Store interface defines CRUD operations over four entities:
//
//   - User: registered accounts with bcrypt password hashes
//   - ChatSession: one conversation thread, identified by a server-issued UUID
//   - ChatMessage: user and assistant messages within a session
//   - RefreshToken: the rotating renewal credential, one per user
//
// # Implementations
//
//   - SQLiteStore: production implementation using modernc.org/sqlite with
//     WAL mode and automatic schema creation
//   - MemoryStore: map-backed implementation for tests
//
// # Conventions
//
// Lookups for missing entities return ErrNotFound. Timestamps are stored as
// RFC 3339 strings in UTC. Message history reads return a recent-N window in
// chronological order, which is what the assistant context assembly needs.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/ember/chat.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
package store
