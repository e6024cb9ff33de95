// Package clock implements the ambient event scheduler required by §5 of
// the specification: schedule_at(delay, cb), cancel(handle), now(). It
// wraps github.com/benbjohnson/clock so the simulation harness can drive an
// entire run's worth of timers deterministically and tests can advance time
// without real sleeps, the way the teacher's timer.Timer wrapped time.Timer
// for a single callback.
package clock

import (
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Handle identifies a scheduled callback so it can be cancelled.
type Handle uint64

// Scheduler is the event scheduler collaborator. All STRATOS engines accept
// one at construction (per §9's dependency-injection design note) rather
// than reaching for a package-level clock.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	timers  map[Handle]*clock.Timer
	nextID  Handle
	started time.Time
}

// New creates a Scheduler backed by the real wall clock, suitable for a
// live deployment.
func New() *Scheduler {
	return newScheduler(clock.New())
}

// NewMock creates a Scheduler backed by a fake clock that only advances
// when the returned *clock.Mock is told to, for deterministic tests and for
// the simulation harness's accelerated run loop.
func NewMock() (*Scheduler, *clock.Mock) {
	m := clock.NewMock()
	return newScheduler(m), m
}

func newScheduler(c clock.Clock) *Scheduler {
	return &Scheduler{
		clock:   c,
		timers:  make(map[Handle]*clock.Timer),
		started: c.Now(),
	}
}

// Now returns the number of seconds elapsed since the scheduler started,
// matching the specification's "now() -> f64 seconds" contract.
func (s *Scheduler) Now() float64 {
	return s.clock.Now().Sub(s.started).Seconds()
}

// ScheduleAt arms cb to run after delay has elapsed, returning a handle
// that Cancel accepts. A fired callback always runs even if Cancel races
// with it (best-effort cancellation per §5); callers are responsible for
// re-reading their own state before acting, exactly as the specification
// requires.
func (s *Scheduler) ScheduleAt(delay time.Duration, cb func()) Handle {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	t := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		cb()
	})

	s.mu.Lock()
	s.timers[id] = t
	s.mu.Unlock()
	return id
}

// Cancel stops a previously scheduled callback. It is a no-op if the
// callback already fired or was already cancelled.
func (s *Scheduler) Cancel(h Handle) {
	s.mu.Lock()
	t, ok := s.timers[h]
	if ok {
		delete(s.timers, h)
	}
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// Jitter returns a uniformly random duration in [min, max), per §6's
// mandatory send jitter.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
