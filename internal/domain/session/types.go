// Package session owns the work-session lifecycle: the start/stop state
// machine, the single-active-session invariant, and the store contract the
// persistence adapters implement.
package session

import "time"

// Session is one tracked start-to-stop work interval for a user, mirrored
// as an event in an external calendar.
type Session struct {
	// ID is assigned by the store at insert time. Immutable.
	ID string

	// UserID identifies the actor. Not unique across sessions.
	UserID string

	// Username is a display-name snapshot taken at start, used in the
	// calendar event summary.
	Username string

	// ScopeID is the optional grouping context the session was started in.
	// Empty means global scope.
	ScopeID string

	// Location is the label chosen at start from the permitted set.
	Location string

	// StartTime is set at creation. Immutable.
	StartTime time.Time

	// EndTime is nil while the session is active. Set exactly once, on stop.
	EndTime *time.Time

	// CalendarEventID is the mirrored calendar entry. Set at creation,
	// immutable, 1:1 with ID.
	CalendarEventID string

	// CalendarEnd is the end time last communicated to the calendar.
	// Mutated only by extension or by stop.
	CalendarEnd time.Time

	// LastCheckAt is the most recent reconciliation touch. Monotonic
	// non-decreasing.
	LastCheckAt time.Time
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	return s.EndTime == nil
}

// Clone returns a deep copy. Stores hand out copies so callers cannot
// mutate persisted state in place.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	return &c
}
