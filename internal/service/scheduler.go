package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultReconcileInterval is the cadence of the reconciliation loop.
const DefaultReconcileInterval = 60 * time.Second

// Scheduler drives the Extender on a fixed cadence. Passes run
// synchronously inside the loop goroutine, so a slow pass delays the next
// tick instead of overlapping it.
type Scheduler struct {
	extender *Extender
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool

	lastPassMu sync.Mutex
	lastPass   time.Time
}

// NewScheduler creates a Scheduler with the given pass interval.
// A non-positive interval falls back to the default.
func NewScheduler(extender *Extender, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		extender: extender,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the reconciliation loop. Call it once the surrounding
// runtime is ready to serve; the first pass runs immediately so sessions
// left over from a previous process get topped up without waiting a full
// interval. Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runPass(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("reconciliation loop stopped", "reason", ctx.Err())
				return
			case <-s.stopChan:
				s.logger.Info("reconciliation loop stopped")
				return
			case <-ticker.C:
				s.runPass(ctx)
			}
		}
	}()
	s.logger.Info("reconciliation loop started", "interval", s.interval)
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.extender.Reconcile(ctx)
	s.lastPassMu.Lock()
	s.lastPass = time.Now().UTC()
	s.lastPassMu.Unlock()
}

// LastPass returns when the most recent pass completed. Zero until the
// first pass finishes. Used by the health endpoint to detect a stuck loop.
func (s *Scheduler) LastPass() time.Time {
	s.lastPassMu.Lock()
	defer s.lastPassMu.Unlock()
	return s.lastPass
}

// Interval returns the configured pass cadence.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Stop terminates the loop and waits for an in-flight pass to finish.
// Safe to call multiple times and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.started {
		select {
		case <-s.stopChan:
		default:
			close(s.stopChan)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}
