// Package outbound defines the outbound port interfaces for the external
// services the session core collaborates with.
package outbound

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a transient calendar failure (network error, 5xx,
// rate limit). Callers distinguish it with errors.Is; anything else from
// the gateway is a permanent failure.
var ErrUnavailable = errors.New("calendar service unavailable")

// Event is the calendar entry created for a session. Start and End are
// UTC instants; adapters attach the explicit fixed timezone on the wire.
type Event struct {
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
}

// CalendarGateway is the outbound port for the calendar mirror.
// Adapters implement this for a concrete calendar API.
type CalendarGateway interface {
	// InsertEvent creates an event and returns its external ID.
	// End must be after Start.
	InsertEvent(ctx context.Context, ev Event) (string, error)

	// PatchEventEnd moves an existing event's end time, leaving every
	// other field untouched.
	PatchEventEnd(ctx context.Context, eventID string, newEnd time.Time) error
}
