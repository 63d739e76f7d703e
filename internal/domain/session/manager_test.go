package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/port/outbound"
)

// mockStore is a map-backed Store with error injection.
type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextID   int
	findErr  error
	insErr   error
	updErr   error
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*Session)}
}

func (m *mockStore) Find(ctx context.Context, q Query) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*Session
	for _, s := range m.sessions {
		if q.UserID != "" && s.UserID != q.UserID {
			continue
		}
		if q.ActiveOnly && !s.Active() {
			continue
		}
		if q.ScopeID != nil && s.ScopeID != *q.ScopeID {
			continue
		}
		out = append(out, s.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) Insert(ctx context.Context, s *Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insErr != nil {
		return "", m.insErr
	}
	m.nextID++
	id := fmt.Sprintf("sess-%d", m.nextID)
	c := s.Clone()
	c.ID = id
	m.sessions[id] = c
	return id, nil
}

func (m *mockStore) UpdateFields(ctx context.Context, id string, f FieldUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updErr != nil {
		return m.updErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return errors.New("not found")
	}
	if f.EndTime != nil {
		end := *f.EndTime
		s.EndTime = &end
	}
	if f.CalendarEnd != nil {
		s.CalendarEnd = *f.CalendarEnd
	}
	if f.LastCheckAt != nil {
		s.LastCheckAt = *f.LastCheckAt
	}
	return nil
}

func (m *mockStore) get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.Clone()
	}
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// patchCall records one PatchEventEnd invocation.
type patchCall struct {
	eventID string
	end     time.Time
}

// mockCalendar records calls and supports error injection.
type mockCalendar struct {
	mu        sync.Mutex
	inserts   []outbound.Event
	patches   []patchCall
	nextEvent int
	insertErr error
	patchErr  error
}

func (c *mockCalendar) InsertEvent(ctx context.Context, ev outbound.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return "", c.insertErr
	}
	c.inserts = append(c.inserts, ev)
	c.nextEvent++
	return fmt.Sprintf("evt-%d", c.nextEvent), nil
}

func (c *mockCalendar) PatchEventEnd(ctx context.Context, eventID string, newEnd time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patchErr != nil {
		return c.patchErr
	}
	c.patches = append(c.patches, patchCall{eventID: eventID, end: newEnd})
	return nil
}

func (c *mockCalendar) lastPatch() (patchCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.patches) == 0 {
		return patchCall{}, false
	}
	return c.patches[len(c.patches)-1], true
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestManager(store Store, cal outbound.CalendarGateway, clk clock.Clock) *Manager {
	return NewManager(store, cal, clk, Config{
		RollingHorizon: 15 * time.Minute,
		Locations:      []string{"home", "ieee", "mcgill", "ev"},
	})
}

func TestStartCreatesCalendarEventThenSession(t *testing.T) {
	store := newMockStore()
	cal := &mockCalendar{}
	clk := clock.NewFake(t0)
	m := newTestManager(store, cal, clk)

	id, err := m.Start(context.Background(), Actor{ID: "u1", DisplayName: "kim"}, "home", "guild-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s := store.get(id)
	if s == nil {
		t.Fatal("session not persisted")
	}
	if !s.Active() {
		t.Error("new session should be active")
	}
	if !s.StartTime.Equal(t0) {
		t.Errorf("StartTime = %v, want %v", s.StartTime, t0)
	}
	wantEnd := t0.Add(15 * time.Minute)
	if !s.CalendarEnd.Equal(wantEnd) {
		t.Errorf("CalendarEnd = %v, want %v", s.CalendarEnd, wantEnd)
	}
	if !s.LastCheckAt.Equal(t0) {
		t.Errorf("LastCheckAt = %v, want %v", s.LastCheckAt, t0)
	}
	if s.CalendarEventID != "evt-1" {
		t.Errorf("CalendarEventID = %q, want evt-1", s.CalendarEventID)
	}
	if len(cal.inserts) != 1 {
		t.Fatalf("calendar inserts = %d, want 1", len(cal.inserts))
	}
	ev := cal.inserts[0]
	if ev.Summary != "kim working at home" {
		t.Errorf("Summary = %q", ev.Summary)
	}
	if !ev.End.Equal(wantEnd) {
		t.Errorf("event End = %v, want %v", ev.End, wantEnd)
	}
}

func TestStartRejectsUnknownLocation(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store, &mockCalendar{}, clock.NewFake(t0))

	_, err := m.Start(context.Background(), Actor{ID: "u1"}, "moon", "")
	if !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("Start() = %v, want ErrInvalidLocation", err)
	}
	if store.count() != 0 {
		t.Error("store must be unchanged on invalid location")
	}
}

func TestStartTwiceSameScopeFails(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store, &mockCalendar{}, clock.NewFake(t0))
	ctx := context.Background()
	actor := Actor{ID: "u1"}

	if _, err := m.Start(ctx, actor, "home", "g1"); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	_, err := m.Start(ctx, actor, "ieee", "g1")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start() = %v, want ErrAlreadyActive", err)
	}
	if store.count() != 1 {
		t.Errorf("store has %d sessions, want 1", store.count())
	}
}

func TestStartGlobalGuardSpansScopes(t *testing.T) {
	// A start without a scope is guarded against active sessions anywhere.
	store := newMockStore()
	m := newTestManager(store, &mockCalendar{}, clock.NewFake(t0))
	ctx := context.Background()
	actor := Actor{ID: "u1"}

	if _, err := m.Start(ctx, actor, "home", "g1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := m.Start(ctx, actor, "home", ""); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("global Start() = %v, want ErrAlreadyActive", err)
	}
	// A different scope is its own guard domain.
	if _, err := m.Start(ctx, actor, "home", "g2"); err != nil {
		t.Fatalf("Start() in other scope error = %v", err)
	}
}

func TestStartCalendarFailureLeavesNoSession(t *testing.T) {
	store := newMockStore()
	cal := &mockCalendar{insertErr: fmt.Errorf("insert: %w", outbound.ErrUnavailable)}
	m := newTestManager(store, cal, clock.NewFake(t0))

	_, err := m.Start(context.Background(), Actor{ID: "u1"}, "home", "g1")
	if !errors.Is(err, ErrCalendarUnavailable) {
		t.Fatalf("Start() = %v, want ErrCalendarUnavailable", err)
	}

	active, err := store.Find(context.Background(), Query{UserID: "u1", ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Error("calendar failure must not leave an orphaned session")
	}
}

func TestStartPolicyDenies(t *testing.T) {
	store := newMockStore()
	m := NewManager(store, &mockCalendar{}, clock.NewFake(t0), Config{
		Locations: []string{"home"},
		Policy:    policyFunc(func(ctx context.Context, actor, loc, scope string) (bool, error) { return false, nil }),
	})
	_, err := m.Start(context.Background(), Actor{ID: "u1"}, "home", "")
	if !errors.Is(err, ErrStartDenied) {
		t.Fatalf("Start() = %v, want ErrStartDenied", err)
	}
	if store.count() != 0 {
		t.Error("store must be unchanged on policy denial")
	}
}

type policyFunc func(ctx context.Context, actorID, location, scope string) (bool, error)

func (f policyFunc) Allow(ctx context.Context, actorID, location, scope string) (bool, error) {
	return f(ctx, actorID, location, scope)
}

func TestStopWithoutStart(t *testing.T) {
	m := newTestManager(newMockStore(), &mockCalendar{}, clock.NewFake(t0))
	_, err := m.Stop(context.Background(), Actor{ID: "u1"}, "g1")
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Stop() = %v, want ErrNoActiveSession", err)
	}
}

func TestStartStopFinalizesCalendar(t *testing.T) {
	store := newMockStore()
	cal := &mockCalendar{}
	clk := clock.NewFake(t0)
	m := newTestManager(store, cal, clk)
	ctx := context.Background()
	actor := Actor{ID: "u1"}

	id, err := m.Start(ctx, actor, "mcgill", "g1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clk.Advance(42 * time.Minute)
	stopped, err := m.Stop(ctx, actor, "g1")
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stopped != id {
		t.Errorf("Stop() id = %q, want %q", stopped, id)
	}

	wantStop := t0.Add(42 * time.Minute)
	s := store.get(id)
	if s.EndTime == nil || !s.EndTime.Equal(wantStop) {
		t.Errorf("EndTime = %v, want %v", s.EndTime, wantStop)
	}
	if !s.CalendarEnd.Equal(wantStop) {
		t.Errorf("CalendarEnd = %v, want %v", s.CalendarEnd, wantStop)
	}
	patch, ok := cal.lastPatch()
	if !ok {
		t.Fatal("no calendar patch issued on stop")
	}
	if patch.eventID != s.CalendarEventID || !patch.end.Equal(wantStop) {
		t.Errorf("patch = %+v, want event %q end %v", patch, s.CalendarEventID, wantStop)
	}
}

func TestStopSurvivesCalendarPatchFailure(t *testing.T) {
	store := newMockStore()
	cal := &mockCalendar{}
	clk := clock.NewFake(t0)
	m := newTestManager(store, cal, clk)
	ctx := context.Background()
	actor := Actor{ID: "u1"}

	id, err := m.Start(ctx, actor, "home", "g1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cal.patchErr = fmt.Errorf("patch: %w", outbound.ErrUnavailable)
	clk.Advance(5 * time.Minute)
	if _, err := m.Stop(ctx, actor, "g1"); err != nil {
		t.Fatalf("Stop() error = %v, patch failure must be non-fatal", err)
	}

	s := store.get(id)
	if s.EndTime == nil {
		t.Error("session must close in the store even when the patch fails")
	}
}

func TestStopFallsBackAcrossScopes(t *testing.T) {
	store := newMockStore()
	cal := &mockCalendar{}
	clk := clock.NewFake(t0)
	m := newTestManager(store, cal, clk)
	ctx := context.Background()
	actor := Actor{ID: "u1"}

	older, err := m.Start(ctx, actor, "home", "g1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Advance(10 * time.Minute)
	newer, err := m.Start(ctx, actor, "ieee", "g2")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Stop issued from a third scope: the scoped query is empty, the
	// fallback sees both, and the most recently started session wins.
	clk.Advance(time.Minute)
	stopped, err := m.Stop(ctx, actor, "g3")
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stopped != newer {
		t.Errorf("Stop() id = %q, want the newer session %q", stopped, newer)
	}
	if s := store.get(older); !s.Active() {
		t.Error("older session must remain active")
	}
}

func TestSingleActiveInvariantUnderRandomInterleavings(t *testing.T) {
	store := newMockStore()
	cal := &mockCalendar{}
	clk := clock.NewFake(t0)
	m := newTestManager(store, cal, clk)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(1))
	actors := []Actor{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	scopes := []string{"", "g1", "g2"}
	locations := []string{"home", "ieee"}

	for i := 0; i < 500; i++ {
		actor := actors[rng.Intn(len(actors))]
		scope := scopes[rng.Intn(len(scopes))]
		clk.Advance(time.Duration(rng.Intn(120)) * time.Second)

		if rng.Intn(2) == 0 {
			_, err := m.Start(ctx, actor, locations[rng.Intn(len(locations))], scope)
			if err != nil && !errors.Is(err, ErrAlreadyActive) {
				t.Fatalf("op %d: Start() unexpected error: %v", i, err)
			}
		} else {
			_, err := m.Stop(ctx, actor, scope)
			if err != nil && !errors.Is(err, ErrNoActiveSession) {
				t.Fatalf("op %d: Stop() unexpected error: %v", i, err)
			}
		}

		// Invariant: at most one active session per (user, scope).
		all, err := store.Find(ctx, Query{ActiveOnly: true})
		if err != nil {
			t.Fatal(err)
		}
		seen := make(map[string]int)
		for _, s := range all {
			key := s.UserID + "|" + s.ScopeID
			seen[key]++
			if seen[key] > 1 {
				t.Fatalf("op %d: two active sessions for %s", i, key)
			}
		}
	}
}

func TestStartStoreGuardFailure(t *testing.T) {
	store := newMockStore()
	store.findErr = errors.New("store down")
	m := newTestManager(store, &mockCalendar{}, clock.NewFake(t0))
	_, err := m.Start(context.Background(), Actor{ID: "u1"}, "home", "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Start() = %v, want ErrStoreUnavailable", err)
	}
}
