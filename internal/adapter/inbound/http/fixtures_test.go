package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
	"github.com/nirmalnpatel111/new-discord-bot/internal/port/outbound"
	"github.com/nirmalnpatel111/new-discord-bot/internal/service"
)

// stubStore is a minimal in-memory session.Store for handler tests.
type stubStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	nextID   int
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[string]*session.Session)}
}

func (s *stubStore) Find(ctx context.Context, q session.Query) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if q.UserID != "" && sess.UserID != q.UserID {
			continue
		}
		if q.ActiveOnly && !sess.Active() {
			continue
		}
		if q.ScopeID != nil && sess.ScopeID != *q.ScopeID {
			continue
		}
		out = append(out, sess.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *stubStore) Insert(ctx context.Context, sess *session.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("sess-%d", s.nextID)
	stored := sess.Clone()
	stored.ID = id
	s.sessions[id] = stored
	return id, nil
}

func (s *stubStore) UpdateFields(ctx context.Context, id string, fields session.FieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
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
	return nil
}

// stubCalendar accepts every insert and patch.
type stubCalendar struct {
	mu      sync.Mutex
	inserts int
}

func (c *stubCalendar) InsertEvent(ctx context.Context, ev outbound.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts++
	return fmt.Sprintf("evt-%d", c.inserts), nil
}

func (c *stubCalendar) PatchEventEnd(ctx context.Context, eventID string, newEnd time.Time) error {
	return nil
}

// newTestCommandService builds a command service over stub collaborators.
func newTestCommandService() *service.CommandService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(newStubStore(), &stubCalendar{}, clock.System{}, session.Config{
		Locations: []string{"ieee", "mcgill", "ev", "home"},
		Logger:    logger,
	})
	return service.NewCommandService(manager, logger)
}
