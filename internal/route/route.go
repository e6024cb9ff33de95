// Package route implements the Route table collaborator (§6): a mapping
// from destination address to next-hop address, populated as a side effect
// of discovery traffic and consulted by dialogue route-and-forward (§4.5).
package route

import (
	"sync"

	"github.com/blunan/Stratos/internal/addr"
)

// Table is a destination -> next-hop map. Unlike the teacher's RIB (a
// three-way Adj-RIB-In/Loc-RIB/Adj-RIB-Out split driven by path-attribute
// comparison), STRATOS's routing decision is trivial: the most recently
// observed next hop toward a destination wins, so one map with last-write-
// wins semantics is the whole table.
type Table struct {
	mu     sync.RWMutex
	routes map[addr.Address]addr.Address
}

// New creates an empty route table.
func New() *Table {
	return &Table{routes: make(map[addr.Address]addr.Address)}
}

// Set installs or overwrites the next hop for dest.
func (t *Table) Set(dest, nextHop addr.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[dest] = nextHop
}

// Get returns the next hop for dest and whether one is known.
func (t *Table) Get(dest addr.Address) (addr.Address, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nextHop, ok := t.routes[dest]
	return nextHop, ok
}
