package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/port/outbound"
)

// DefaultRollingHorizon is how far into the future the calendar mirror is
// kept while a session is open.
const DefaultRollingHorizon = 15 * time.Minute

var tracer = otel.Tracer("github.com/nirmalnpatel111/new-discord-bot/internal/domain/session")

// Actor identifies the user performing a start or stop.
type Actor struct {
	ID          string
	DisplayName string
}

// Config holds manager configuration.
type Config struct {
	// RollingHorizon is the initial look-ahead for the calendar event end.
	// Default: 15 minutes.
	RollingHorizon time.Duration

	// Locations is the closed set of permitted location labels.
	Locations []string

	// Policy is an optional start guard. Nil allows all starts.
	Policy StartPolicy

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns the start/stop transitions and the single-active-session
// invariant. It is safe for concurrent use; correctness between commands
// and the reconciliation pass relies on the store's atomic per-document
// updates, not on in-process locking.
type Manager struct {
	store     Store
	calendar  outbound.CalendarGateway
	clock     clock.Clock
	horizon   time.Duration
	permitted map[string]struct{}
	locations []string
	policy    StartPolicy
	logger    *slog.Logger
}

// NewManager creates a Manager with the given collaborators.
func NewManager(store Store, calendar outbound.CalendarGateway, clk clock.Clock, cfg Config) *Manager {
	horizon := cfg.RollingHorizon
	if horizon <= 0 {
		horizon = DefaultRollingHorizon
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	permitted := make(map[string]struct{}, len(cfg.Locations))
	locations := make([]string, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		loc = strings.ToLower(strings.TrimSpace(loc))
		if loc == "" {
			continue
		}
		if _, ok := permitted[loc]; ok {
			continue
		}
		permitted[loc] = struct{}{}
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	return &Manager{
		store:     store,
		calendar:  calendar,
		clock:     clk,
		horizon:   horizon,
		permitted: permitted,
		locations: locations,
		policy:    cfg.Policy,
		logger:    logger,
	}
}

// PermittedLocations returns the sorted permitted location labels.
func (m *Manager) PermittedLocations() []string {
	out := make([]string, len(m.locations))
	copy(out, m.locations)
	return out
}

// Start opens a new session for the actor at the given location.
//
// The calendar event is created before the session is persisted: a calendar
// failure aborts the whole operation so no calendar-less session can exist.
// Returns the new session ID, or ErrInvalidLocation, ErrStartDenied,
// ErrAlreadyActive, ErrCalendarUnavailable, or ErrStoreUnavailable.
func (m *Manager) Start(ctx context.Context, actor Actor, location, scope string) (string, error) {
	ctx, span := tracer.Start(ctx, "session.Start", trace.WithAttributes(
		attribute.String("session.user_id", actor.ID),
		attribute.String("session.location", location),
		attribute.String("session.scope_id", scope),
	))
	defer span.End()

	location = strings.ToLower(strings.TrimSpace(location))
	if _, ok := m.permitted[location]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}

	if m.policy != nil {
		allowed, err := m.policy.Allow(ctx, actor.ID, location, scope)
		if err != nil {
			m.logger.Warn("start policy evaluation failed, denying",
				"user_id", actor.ID, "error", err)
			return "", fmt.Errorf("%w: policy error: %v", ErrStartDenied, err)
		}
		if !allowed {
			return "", ErrStartDenied
		}
	}

	// Guard: no double-starts within the scope (or anywhere, for a
	// global-scope start).
	guard := Query{UserID: actor.ID, ActiveOnly: true, Limit: 1}
	if scope != "" {
		guard.ScopeID = &scope
	}
	existing, err := m.store.Find(ctx, guard)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: guard query: %v", ErrStoreUnavailable, err)
	}
	if len(existing) > 0 {
		return "", ErrAlreadyActive
	}

	start := m.clock.Now()
	initialEnd := start.Add(m.horizon)

	name := actor.DisplayName
	if name == "" {
		name = actor.ID
	}

	eventID, err := m.calendar.InsertEvent(ctx, outbound.Event{
		Summary:     fmt.Sprintf("%s working at %s", name, location),
		Location:    location,
		Description: "Auto-created by the work-session bot",
		Start:       start,
		End:         initialEnd,
	})
	if err != nil {
		span.RecordError(err)
		m.logger.Error("calendar insert failed, aborting start",
			"user_id", actor.ID, "location", location, "error", err)
		return "", fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	id, err := m.store.Insert(ctx, &Session{
		UserID:          actor.ID,
		Username:        name,
		ScopeID:         scope,
		Location:        location,
		StartTime:       start,
		CalendarEventID: eventID,
		CalendarEnd:     initialEnd,
		LastCheckAt:     start,
	})
	if err != nil {
		span.RecordError(err)
		// The calendar event is now orphaned; it stops growing once no
		// session references it, so it self-limits to the initial horizon.
		m.logger.Error("session insert failed after calendar create",
			"user_id", actor.ID, "calendar_event_id", eventID, "error", err)
		return "", fmt.Errorf("%w: insert: %v", ErrStoreUnavailable, err)
	}

	m.logger.Info("session started",
		"session_id", id, "user_id", actor.ID,
		"location", location, "scope_id", scope,
		"calendar_event_id", eventID)
	return id, nil
}

// Stop closes the actor's most recent active session.
//
// Lookup is a two-step strategy: the scoped query first, then an unscoped
// fallback so a session started elsewhere can still be stopped. When the
// fallback surfaces sessions from several scopes, the one with the latest
// start time wins.
//
// The calendar patch lands before the store update so a calendar viewer
// never sees a stale end after the store already reports the session
// closed. A failed patch is logged and non-fatal: the store must still
// advance or the session would stay active forever.
func (m *Manager) Stop(ctx context.Context, actor Actor, scope string) (string, error) {
	ctx, span := tracer.Start(ctx, "session.Stop", trace.WithAttributes(
		attribute.String("session.user_id", actor.ID),
		attribute.String("session.scope_id", scope),
	))
	defer span.End()

	q := Query{UserID: actor.ID, ActiveOnly: true}
	if scope != "" {
		q.ScopeID = &scope
	}
	candidates, err := m.store.Find(ctx, q)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: stop query: %v", ErrStoreUnavailable, err)
	}
	if len(candidates) == 0 && scope != "" {
		candidates, err = m.store.Find(ctx, Query{UserID: actor.ID, ActiveOnly: true})
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("%w: fallback query: %v", ErrStoreUnavailable, err)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoActiveSession
	}

	target := candidates[0]
	for _, c := range candidates[1:] {
		if c.StartTime.After(target.StartTime) {
			target = c
		}
	}

	stop := m.clock.Now()

	if target.CalendarEventID != "" {
		if err := m.calendar.PatchEventEnd(ctx, target.CalendarEventID, stop); err != nil {
			span.RecordError(err)
			m.logger.Error("calendar patch failed on stop, store will still close the session",
				"session_id", target.ID,
				"calendar_event_id", target.CalendarEventID,
				"error", err)
		}
	}

	update := FieldUpdate{EndTime: &stop, CalendarEnd: &stop, LastCheckAt: &stop}
	if err := m.store.UpdateFields(ctx, target.ID, update); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: close: %v", ErrStoreUnavailable, err)
	}

	m.logger.Info("session stopped",
		"session_id", target.ID, "user_id", actor.ID,
		"duration", stop.Sub(target.StartTime))
	return target.ID, nil
}
