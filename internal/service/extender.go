// Package service contains the application services that sit between the
// inbound adapters and the session domain: chat command handling and the
// background calendar reconciliation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
	"github.com/nirmalnpatel111/new-discord-bot/internal/metrics"
	"github.com/nirmalnpatel111/new-discord-bot/internal/port/outbound"
)

// DefaultTopUpThreshold is the remaining-time cutoff below which an open
// session's calendar event is extended.
const DefaultTopUpThreshold = 10 * time.Minute

var extenderTracer = otel.Tracer("github.com/nirmalnpatel111/new-discord-bot/internal/service")

// Observer receives reconciliation outcomes. Failures on this path have no
// user synchronously waiting, so they surface here instead of as returned
// errors. The default observer logs through slog.
type Observer interface {
	// OnExtended is called after a session's calendar end was successfully
	// topped up and mirrored to the store.
	OnExtended(sessionID string, newEnd time.Time)

	// OnExtendFailure is called when one session's extension failed. The
	// pass continues with the remaining sessions.
	OnExtendFailure(sessionID string, err error)

	// OnPassError is called when a whole pass aborted (store query failed
	// or the pass panicked). The next scheduled pass retries.
	OnPassError(err error)
}

// slogObserver is the default Observer.
type slogObserver struct {
	logger *slog.Logger
}

func (o slogObserver) OnExtended(sessionID string, newEnd time.Time) {
	o.logger.Debug("calendar event extended", "session_id", sessionID, "new_end", newEnd)
}

func (o slogObserver) OnExtendFailure(sessionID string, err error) {
	o.logger.Error("failed to extend calendar event", "session_id", sessionID, "error", err)
}

func (o slogObserver) OnPassError(err error) {
	o.logger.Error("reconciliation pass failed", "error", err)
}

// ExtenderConfig holds reconciliation policy knobs.
type ExtenderConfig struct {
	// RollingHorizon is how far past "now" an extension pushes the
	// calendar end. Default: session.DefaultRollingHorizon.
	RollingHorizon time.Duration

	// TopUpThreshold is the remaining-buffer cutoff: sessions with more
	// than this left are skipped to keep calendar API volume down.
	// Default: 10 minutes.
	TopUpThreshold time.Duration

	// Observer receives pass outcomes. Default: slog-backed.
	Observer Observer

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Extender is the reconciliation pass over all open sessions. Each pass
// tops up calendar events whose mirrored end time is about to run out.
// It never returns an error: per-session failures are isolated and
// reported to the Observer, and the scheduled recurrence is the retry.
type Extender struct {
	store     session.Store
	calendar  outbound.CalendarGateway
	clock     clock.Clock
	horizon   time.Duration
	threshold time.Duration
	observer  Observer
	metrics   *metrics.Metrics
}

// NewExtender creates an Extender over the given collaborators.
func NewExtender(store session.Store, calendar outbound.CalendarGateway, clk clock.Clock, cfg ExtenderConfig) *Extender {
	horizon := cfg.RollingHorizon
	if horizon <= 0 {
		horizon = session.DefaultRollingHorizon
	}
	threshold := cfg.TopUpThreshold
	if threshold <= 0 {
		threshold = DefaultTopUpThreshold
	}
	observer := cfg.Observer
	if observer == nil {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}
		observer = slogObserver{logger: logger}
	}
	return &Extender{
		store:     store,
		calendar:  calendar,
		clock:     clk,
		horizon:   horizon,
		threshold: threshold,
		observer:  observer,
		metrics:   cfg.Metrics,
	}
}

// Reconcile runs one pass over all active sessions.
//
// A concurrent Stop can close a session between the query here and the
// patch below; the resulting brief over-extension is accepted and
// self-corrects because a closed session never appears in the active
// query again.
func (e *Extender) Reconcile(ctx context.Context) {
	ctx, span := extenderTracer.Start(ctx, "extender.Reconcile")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.observer.OnPassError(fmt.Errorf("reconcile panicked: %v", r))
		}
	}()

	started := e.clock.Now()

	active, err := e.store.Find(ctx, session.Query{ActiveOnly: true})
	if err != nil {
		span.RecordError(err)
		e.observer.OnPassError(fmt.Errorf("query active sessions: %w", err))
		return
	}
	span.SetAttributes(attribute.Int("sessions.active", len(active)))

	if e.metrics != nil {
		e.metrics.ActiveSessions.Set(float64(len(active)))
	}
	if len(active) == 0 {
		e.finishPass(started)
		return
	}

	now := e.clock.Now()
	extended := 0
	for _, s := range active {
		if ctx.Err() != nil {
			e.observer.OnPassError(ctx.Err())
			return
		}
		// Start never persists a session without an event, but an
		// eventless record must not wedge the pass.
		if s.CalendarEventID == "" {
			continue
		}

		currentEnd := s.CalendarEnd
		if currentEnd.IsZero() {
			// Unknown mirror end: treat as expired so this pass
			// extends it rather than letting it drift.
			currentEnd = now
		}

		if currentEnd.Sub(now) > e.threshold {
			continue // enough buffer left, skip this pass
		}

		newEnd := now.Add(e.horizon)
		if err := e.calendar.PatchEventEnd(ctx, s.CalendarEventID, newEnd); err != nil {
			if e.metrics != nil {
				e.metrics.ExtendFailures.Inc()
			}
			e.observer.OnExtendFailure(s.ID, fmt.Errorf("patch event %s: %w", s.CalendarEventID, err))
			continue
		}

		checked := now
		if err := e.store.UpdateFields(ctx, s.ID, session.FieldUpdate{
			CalendarEnd: &newEnd,
			LastCheckAt: &checked,
		}); err != nil {
			// The calendar moved but the mirror did not; the next pass
			// re-reads the stale CalendarEnd and re-patches, which is
			// idempotent on the calendar side.
			if e.metrics != nil {
				e.metrics.ExtendFailures.Inc()
			}
			e.observer.OnExtendFailure(s.ID, fmt.Errorf("update session: %w", err))
			continue
		}

		extended++
		if e.metrics != nil {
			e.metrics.ExtensionsTotal.Inc()
		}
		e.observer.OnExtended(s.ID, newEnd)
	}
	span.SetAttributes(attribute.Int("sessions.extended", extended))
	e.finishPass(started)
}

func (e *Extender) finishPass(started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReconcilePasses.Inc()
	e.metrics.ReconcileDuration.Observe(e.clock.Now().Sub(started).Seconds())
}
