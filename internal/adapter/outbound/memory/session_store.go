// Package memory provides an in-memory implementation of the session store.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
)

// SessionStore implements session.Store with an in-memory map.
// Thread-safe for concurrent access. Sessions do not survive a restart;
// use the file or sqlite backend for anything beyond development.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session.Session)}
}

// Find returns sessions matching the query. Results are copies.
func (s *SessionStore) Find(ctx context.Context, q session.Query) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*session.Session
	for _, sess := range s.sessions {
		if !matches(sess, q) {
			continue
		}
		out = append(out, sess.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Insert stores a new session and returns its assigned ID.
func (s *SessionStore) Insert(ctx context.Context, sess *session.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	stored := sess.Clone()
	stored.ID = id
	s.sessions[id] = stored
	return id, nil
}

// UpdateFields applies a partial update to one session atomically.
func (s *SessionStore) UpdateFields(ctx context.Context, id string, fields session.FieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	applyUpdate(sess, fields)
	return nil
}

// Size returns the number of stored sessions. Used by the health check.
func (s *SessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func matches(sess *session.Session, q session.Query) bool {
	if q.UserID != "" && sess.UserID != q.UserID {
		return false
	}
	if q.ActiveOnly && !sess.Active() {
		return false
	}
	if q.ScopeID != nil && sess.ScopeID != *q.ScopeID {
		return false
	}
	return true
}

func applyUpdate(sess *session.Session, fields session.FieldUpdate) {
	if fields.EndTime != nil {
		end := *fields.EndTime
		sess.EndTime = &end
	}
	if fields.CalendarEnd != nil {
		sess.CalendarEnd = *fields.CalendarEnd
	}
	if fields.LastCheckAt != nil {
		sess.LastCheckAt = *fields.LastCheckAt
	}
}
