package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests. It
// mirrors the merge and expiry semantics of the persistent backends.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	closed   bool

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory store with the given idle TTL
// (0 = never expire).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get retrieves a live session, deleting it first if idle-expired.
func (m *MemoryStore) Get(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	sess, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Expired(m.ttl, m.now()) {
		delete(m.sessions, key)
		return nil, ErrSessionNotFound
	}

	return cloneSession(sess), nil
}

// Put merges an update, creating the session if absent.
func (m *MemoryStore) Put(ctx context.Context, key string, update *Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	sess, ok := m.sessions[key]
	if !ok {
		sess = New()
		m.sessions[key] = sess
	}
	applyUpdate(sess, update)
	sess.LastActivity = m.now()
	return nil
}

// Delete removes the session. Absent keys are a no-op.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.sessions, key)
	return nil
}

// PurgeExpired sweeps idle sessions.
func (m *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	purged := 0
	now := m.now()
	for key, sess := range m.sessions {
		if sess.Expired(m.ttl, now) {
			delete(m.sessions, key)
			purged++
		}
	}
	return purged, nil
}

// Ping always succeeds while the store is open.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func applyUpdate(sess *Session, update *Update) {
	if update == nil {
		return
	}
	if update.State != nil {
		sess.State = *update.State
	}
	if update.History != nil {
		sess.History = append([]string(nil), update.History...)
	}
	if update.ExtractedData != nil {
		if sess.ExtractedData == nil {
			sess.ExtractedData = make(map[string]any, len(update.ExtractedData))
		}
		for k, v := range update.ExtractedData {
			sess.ExtractedData[k] = v
		}
	}
}

func cloneSession(sess *Session) *Session {
	out := &Session{
		State:        sess.State,
		History:      append([]string(nil), sess.History...),
		LastActivity: sess.LastActivity,
	}
	if sess.ExtractedData != nil {
		out.ExtractedData = make(map[string]any, len(sess.ExtractedData))
		for k, v := range sess.ExtractedData {
			out.ExtractedData[k] = v
		}
	}
	return out
}
