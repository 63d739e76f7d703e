// Package file provides a JSON-file-backed implementation of the session
// store. It offers atomic writes (write-tmp-then-rename), automatic backups,
// and file locking (flock for cross-process, mutex for in-process), which is
// enough for a single-node deployment without a database.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
)

// record is the JSON shape of one persisted session.
type record struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Username        string     `json:"username,omitempty"`
	ScopeID         string     `json:"scope_id,omitempty"`
	Location        string     `json:"location"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	CalendarEventID string     `json:"calendar_event_id"`
	CalendarEnd     time.Time  `json:"calendar_end"`
	LastCheckAt     time.Time  `json:"last_check_at"`
}

// document is the top-level structure persisted in the sessions file.
type document struct {
	Version   string    `json:"version"`
	Sessions  []record  `json:"sessions"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore implements session.Store over a single JSON file.
type SessionStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSessionStore creates a file-backed session store at the given path.
// The file is created on first write.
func NewSessionStore(path string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{path: path, logger: logger}
}

// Find returns sessions matching the query.
func (s *SessionStore) Find(ctx context.Context, q session.Query) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []*session.Session
	for i := range doc.Sessions {
		sess := toDomain(&doc.Sessions[i])
		if !matches(sess, q) {
			continue
		}
		out = append(out, sess)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Insert persists a new session and returns its assigned ID.
func (s *SessionStore) Insert(ctx context.Context, sess *session.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	stored := sess.Clone()
	stored.ID = id
	doc.Sessions = append(doc.Sessions, toRecord(stored))
	if err := s.save(doc); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateFields applies a partial update to one session. The whole file is
// rewritten atomically, so a reader never observes a half-applied update.
func (s *SessionStore) UpdateFields(ctx context.Context, id string, fields session.FieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Sessions {
		if doc.Sessions[i].ID != id {
			continue
		}
		r := &doc.Sessions[i]
		if fields.EndTime != nil {
			end := *fields.EndTime
			r.EndTime = &end
		}
		if fields.CalendarEnd != nil {
			r.CalendarEnd = *fields.CalendarEnd
		}
		if fields.LastCheckAt != nil {
			r.LastCheckAt = *fields.LastCheckAt
		}
		return s.save(doc)
	}
	return session.ErrNotFound
}

// Path returns the configured file path.
func (s *SessionStore) Path() string {
	return s.path
}

// load reads and parses the sessions file. A missing file yields an empty
// document; invalid JSON is an error. Warns if permissions are more open
// than 0600 (the file holds user activity data).
func (s *SessionStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: "1"}, nil
		}
		return nil, fmt.Errorf("read sessions file: %w", err)
	}

	// Skip on Windows where Unix permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 { // group or other has access
				s.logger.Warn("sessions file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sessions file: %w", err)
	}
	return &doc, nil
}

// save writes the document to disk atomically.
//
// The write sequence is:
//  1. Acquire flock on path+".lock" (the in-process mutex is already held)
//  2. Copy current file to path+".bak" (ignored if no current file)
//  3. Marshal as indented JSON
//  4. Write to path+".tmp" with 0600 permissions, fsync, rename over path
func (s *SessionStore) save(doc *document) error {
	doc.UpdatedAt = time.Now().UTC()

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on sessions file", "error", err)
	}
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over
// the target path. On any error the temp file is cleaned up.
func (s *SessionStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to sessions file: %w", err)
	}
	return nil
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

func toRecord(s *session.Session) record {
	return record{
		ID:              s.ID,
		UserID:          s.UserID,
		Username:        s.Username,
		ScopeID:         s.ScopeID,
		Location:        s.Location,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		CalendarEventID: s.CalendarEventID,
		CalendarEnd:     s.CalendarEnd,
		LastCheckAt:     s.LastCheckAt,
	}
}

func toDomain(r *record) *session.Session {
	s := &session.Session{
		ID:              r.ID,
		UserID:          r.UserID,
		Username:        r.Username,
		ScopeID:         r.ScopeID,
		Location:        r.Location,
		StartTime:       r.StartTime,
		CalendarEventID: r.CalendarEventID,
		CalendarEnd:     r.CalendarEnd,
		LastCheckAt:     r.LastCheckAt,
	}
	if r.EndTime != nil {
		end := *r.EndTime
		s.EndTime = &end
	}
	return s
}
