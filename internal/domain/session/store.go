package session

import (
	"context"
	"time"
)

// Query selects sessions by field equality. The zero value matches all
// sessions. Implementations must treat every set field as an AND filter.
type Query struct {
	// UserID, when non-empty, filters on the actor.
	UserID string

	// ActiveOnly, when true, matches only sessions with a nil EndTime.
	ActiveOnly bool

	// ScopeID, when non-nil, filters on the scope. A pointer to the empty
	// string matches global-scope sessions; nil applies no scope filter.
	ScopeID *string

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// FieldUpdate is a partial per-document update. Nil fields are left
// untouched; the store must apply the non-nil fields atomically.
type FieldUpdate struct {
	EndTime     *time.Time
	CalendarEnd *time.Time
	LastCheckAt *time.Time
}

// Store provides session persistence. Implementations: in-memory, JSON
// file, SQLite. The core relies on UpdateFields being atomic per document;
// no cross-document transactions are required.
type Store interface {
	// Find returns sessions matching the query, in no guaranteed order.
	Find(ctx context.Context, q Query) ([]*Session, error)

	// Insert persists a new session and returns its store-assigned ID.
	Insert(ctx context.Context, s *Session) (string, error)

	// UpdateFields applies a partial update to one session.
	UpdateFields(ctx context.Context, id string, fields FieldUpdate) error
}

// StartPolicy is an optional guard evaluated before a session starts,
// after the location and single-active checks. Implementations: CEL
// expression evaluator; nil means allow all.
type StartPolicy interface {
	// Allow reports whether the actor may start a session at the location
	// within the scope. An error is treated as a denial.
	Allow(ctx context.Context, actorID, location, scope string) (bool, error)
}
