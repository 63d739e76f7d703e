// Package sqlite provides a SQLite-backed implementation of the session
// store, suitable for single-node production use.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	username          TEXT NOT NULL DEFAULT '',
	scope_id          TEXT NOT NULL DEFAULT '',
	location          TEXT NOT NULL,
	start_time        INTEGER NOT NULL,
	end_time          INTEGER,
	calendar_event_id TEXT NOT NULL DEFAULT '',
	calendar_end      INTEGER NOT NULL,
	last_check_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_active
	ON sessions (user_id, scope_id) WHERE end_time IS NULL;
`

// Store implements session.Store on SQLite. Timestamps are stored as
// microseconds since the Unix epoch; a NULL end_time marks an active
// session, matching the domain's nil EndTime.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite store at path and bootstraps the
// schema. The returned store is safe for concurrent use.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Find returns sessions matching the query.
func (s *Store) Find(ctx context.Context, q session.Query) ([]*session.Session, error) {
	var (
		where []string
		args  []any
	)
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.ActiveOnly {
		where = append(where, "end_time IS NULL")
	}
	if q.ScopeID != nil {
		where = append(where, "scope_id = ?")
		args = append(args, *q.ScopeID)
	}

	query := `SELECT id, user_id, username, scope_id, location, start_time,
	end_time, calendar_event_id, calendar_end, last_check_at FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Insert persists a new session and returns its assigned ID.
func (s *Store) Insert(ctx context.Context, sess *session.Session) (string, error) {
	id := uuid.New().String()
	var endTime any
	if sess.EndTime != nil {
		endTime = sess.EndTime.UnixMicro()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (
	id, user_id, username, scope_id, location,
	start_time, end_time, calendar_event_id, calendar_end, last_check_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sess.UserID, sess.Username, sess.ScopeID, sess.Location,
		sess.StartTime.UnixMicro(), endTime, sess.CalendarEventID,
		sess.CalendarEnd.UnixMicro(), sess.LastCheckAt.UnixMicro(),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// UpdateFields applies a partial update to one session. The single UPDATE
// statement gives the atomic per-document semantics the core relies on.
func (s *Store) UpdateFields(ctx context.Context, id string, fields session.FieldUpdate) error {
	var (
		sets []string
		args []any
	)
	if fields.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, fields.EndTime.UnixMicro())
	}
	if fields.CalendarEnd != nil {
		sets = append(sets, "calendar_end = ?")
		args = append(args, fields.CalendarEnd.UnixMicro())
	}
	if fields.LastCheckAt != nil {
		sets = append(sets, "last_check_at = ?")
		args = append(args, fields.LastCheckAt.UnixMicro())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess        session.Session
		startMicro  int64
		endMicro    sql.NullInt64
		calEndMicro int64
		checkMicro  int64
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Username, &sess.ScopeID, &sess.Location,
		&startMicro, &endMicro, &sess.CalendarEventID, &calEndMicro, &checkMicro,
	)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.StartTime = time.UnixMicro(startMicro).UTC()
	if endMicro.Valid {
		end := time.UnixMicro(endMicro.Int64).UTC()
		sess.EndTime = &end
	}
	sess.CalendarEnd = time.UnixMicro(calEndMicro).UTC()
	sess.LastCheckAt = time.UnixMicro(checkMicro).UTC()
	return &sess, nil
}
