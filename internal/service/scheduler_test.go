package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
)

// instrumentedStore wraps a session.Store and runs a hook on every Find,
// used to hold a pass open and prove that passes never overlap.
type instrumentedStore struct {
	inner  *fakeStore
	onFind func()
}

func (s *instrumentedStore) Find(ctx context.Context, q session.Query) ([]*session.Session, error) {
	if s.onFind != nil {
		s.onFind()
	}
	return s.inner.Find(ctx, q)
}

func (s *instrumentedStore) Insert(ctx context.Context, sess *session.Session) (string, error) {
	return s.inner.Insert(ctx, sess)
}

func (s *instrumentedStore) UpdateFields(ctx context.Context, id string, u session.FieldUpdate) error {
	return s.inner.UpdateFields(ctx, id, u)
}

func TestSchedulerRunsPassesWithoutOverlap(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeStore()
	var finds atomic.Int64
	var concurrent atomic.Int64
	var maxConcurrent atomic.Int64

	slow := &instrumentedStore{
		inner: store,
		onFind: func() {
			finds.Add(1)
			cur := concurrent.Add(1)
			for {
				old := maxConcurrent.Load()
				if cur <= old || maxConcurrent.CompareAndSwap(old, cur) {
					break
				}
			}
			// Hold the pass open longer than the tick interval.
			time.Sleep(30 * time.Millisecond)
			concurrent.Add(-1)
		},
	}

	ext := newTestExtender(slow, newFakeCalendar(), clock.NewFake(t0), nil, nil)
	sched := NewScheduler(ext, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if finds.Load() < 2 {
		t.Errorf("passes = %d, want at least 2", finds.Load())
	}
	if maxConcurrent.Load() > 1 {
		t.Errorf("max concurrent passes = %d, want 1", maxConcurrent.Load())
	}
	if sched.LastPass().IsZero() {
		t.Error("LastPass() should be set after a completed pass")
	}
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	ext := newTestExtender(newFakeStore(), newFakeCalendar(), clock.NewFake(t0), nil, nil)
	sched := NewScheduler(ext, time.Second, nil)
	sched.Stop() // must not panic or hang
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ext := newTestExtender(newFakeStore(), newFakeCalendar(), clock.NewFake(t0), nil, nil)
	sched := NewScheduler(ext, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	sched.Stop()
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	ext := newTestExtender(newFakeStore(), newFakeCalendar(), clock.NewFake(t0), nil, nil)
	sched := NewScheduler(ext, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	sched.Start(ctx) // second call is a no-op
	sched.Stop()
}
