// Package neighbor implements the Neighborhood oracle (§6): the set of
// one-hop neighbours currently considered alive, maintained by periodic
// hello exchange on a dedicated port. Grounded on
// original_source/code/neighborhood-application.cc's hello send/expire
// loop, generalized the way the teacher's speaker/peer.go tracks per-peer
// liveness.
package neighbor

import (
	"sync"
	"time"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
)

// Table tracks one-hop neighbours by last-seen time and expires any peer
// that has gone MaxTimesNotSeen*HelloInterval without a hello (§6).
type Table struct {
	mu             sync.RWMutex
	lastSeen       map[addr.Address]float64
	scheduler      *clock.Scheduler
	helloInterval  time.Duration
	expireAfter    float64 // seconds
}

// New creates a neighbour table whose liveness window is
// maxTimesNotSeen*helloInterval, per §6.
func New(scheduler *clock.Scheduler, helloInterval time.Duration, maxTimesNotSeen int) *Table {
	return &Table{
		lastSeen:      make(map[addr.Address]float64),
		scheduler:     scheduler,
		helloInterval: helloInterval,
		expireAfter:   float64(maxTimesNotSeen) * helloInterval.Seconds(),
	}
}

// Observe records a hello (or any other datagram) received from sender,
// refreshing its liveness.
func (t *Table) Observe(sender addr.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[sender] = t.scheduler.Now()
}

// IsNeighbour reports whether sender has been seen within the liveness
// window as of now.
func (t *Table) IsNeighbour(sender addr.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen, ok := t.lastSeen[sender]
	if !ok {
		return false
	}
	return t.scheduler.Now()-seen <= t.expireAfter
}

// Neighbours returns the current set of live neighbours, pruning any that
// have aged out.
func (t *Table) Neighbours() []addr.Address {
	now := t.scheduler.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]addr.Address, 0, len(t.lastSeen))
	for a, seen := range t.lastSeen {
		if now-seen > t.expireAfter {
			delete(t.lastSeen, a)
			continue
		}
		out = append(out, a)
	}
	return out
}
