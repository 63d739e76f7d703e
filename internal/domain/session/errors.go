package session

import "errors"

// Operation-boundary error kinds. Collaborator failures are translated to
// one of these at Start/Stop/Reconcile; raw store or calendar errors never
// reach the chat layer.
var (
	// ErrInvalidLocation means the location token is missing or not in the
	// permitted set. No mutation performed.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrAlreadyActive means a qualifying active session already exists for
	// the actor. No mutation performed.
	ErrAlreadyActive = errors.New("session already active")

	// ErrNoActiveSession means stop found nothing, even after the unscoped
	// fallback search. No mutation performed.
	ErrNoActiveSession = errors.New("no active session")

	// ErrCalendarUnavailable means the calendar create failed during start.
	// Start aborts entirely; no orphan session is persisted.
	ErrCalendarUnavailable = errors.New("calendar unavailable")

	// ErrStoreUnavailable means persistence failed. No partial state is
	// assumed committed.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrStartDenied means the configured start policy rejected the request.
	ErrStartDenied = errors.New("start denied by policy")
)

// ErrNotFound is returned by stores when the session ID does not exist.
var ErrNotFound = errors.New("session not found")
