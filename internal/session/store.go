package session

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	// ErrSessionNotFound is returned when no live session exists for a
	// key. An expired session reads as not found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("session store is closed")
)

// Store abstracts session persistence. Implementations must be safe
// for concurrent use; same-key serialization is the caller's job (see
// KeyedMutex).
type Store interface {
	// Get retrieves the session for a key. Returns ErrSessionNotFound
	// when the key is unknown or the session has idle-expired (expired
	// sessions are deleted on read).
	Get(ctx context.Context, key string) (*Session, error)

	// Put merges a partial update into the session for a key, creating
	// it if absent, and stamps LastActivity.
	Put(ctx context.Context, key string, update *Update) error

	// Delete removes the session for a key. Deleting an absent session
	// is a no-op.
	Delete(ctx context.Context, key string) error

	// PurgeExpired deletes idle-expired sessions and returns how many
	// were removed. Backends with native TTL may report zero.
	PurgeExpired(ctx context.Context) (int, error)

	// Ping checks backend liveness.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
