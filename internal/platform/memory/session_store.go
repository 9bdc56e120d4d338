package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
)

// SessionStore keeps sessions as JSON blobs in process memory. Sessions round-trip through
// encoding so callers never share state with the store.
type SessionStore struct {
	mu    sync.Mutex
	blobs map[reconciliation.SessionKey]storedSession
	now   func() time.Time
}

type storedSession struct {
	payload   []byte
	version   int64
	expiresAt time.Time
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		blobs: make(map[reconciliation.SessionKey]storedSession),
		now:   time.Now,
	}
}

// live returns the stored session unless it has expired
func (s *SessionStore) live(key reconciliation.SessionKey) (storedSession, bool) {
	stored, ok := s.blobs[key]
	if !ok {
		return storedSession{}, false
	}
	if !stored.expiresAt.IsZero() && !stored.expiresAt.After(s.now()) {
		delete(s.blobs, key)
		return storedSession{}, false
	}
	return stored, true
}

// Load implements reconciliation.SessionStore
func (s *SessionStore) Load(ctx context.Context, key reconciliation.SessionKey) (*reconciliation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.live(key)
	if !ok {
		return nil, errors.NewNotFoundError("reconciliation session not found")
	}
	var session reconciliation.Session
	if err := json.Unmarshal(stored.payload, &session); err != nil {
		return nil, errors.NewInternalError("failed to decode reconciliation session", err)
	}
	session.Version = stored.version
	return &session, nil
}

// Save implements reconciliation.SessionStore
func (s *SessionStore) Save(ctx context.Context, session *reconciliation.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if stored, ok := s.live(session.Key); ok {
		current = stored.version
	}
	if current != session.Version {
		return errors.NewConflictError("session was modified concurrently").
			WithDetail("expectedVersion", session.Version)
	}

	session.Version++
	payload, err := json.Marshal(session)
	if err != nil {
		session.Version--
		return errors.NewInternalError("failed to encode reconciliation session", err)
	}
	s.blobs[session.Key] = storedSession{
		payload:   payload,
		version:   session.Version,
		expiresAt: session.ExpiresAt,
	}
	return nil
}

// Delete implements reconciliation.SessionStore
func (s *SessionStore) Delete(ctx context.Context, key reconciliation.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
