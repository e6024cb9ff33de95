package neighbor

import (
	"testing"
	"time"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
)

func TestObserveThenIsNeighbour(t *testing.T) {
	s, _ := clock.NewMock()
	tbl := New(s, 2*time.Second, 3)
	tbl.Observe(addr.Address(5))
	if !tbl.IsNeighbour(addr.Address(5)) {
		t.Errorf("expected address to be a neighbour right after observing it")
	}
}

func TestUnknownIsNotNeighbour(t *testing.T) {
	s, _ := clock.NewMock()
	tbl := New(s, 2*time.Second, 3)
	if tbl.IsNeighbour(addr.Address(99)) {
		t.Errorf("expected unknown address not to be a neighbour")
	}
}

func TestExpiryAfterMaxTimesNotSeen(t *testing.T) {
	s, mock := clock.NewMock()
	tbl := New(s, 2*time.Second, 3)
	tbl.Observe(addr.Address(5))
	mock.Add(5 * time.Second) // < 3*2s window
	if !tbl.IsNeighbour(addr.Address(5)) {
		t.Errorf("expected neighbour still alive within window")
	}
	mock.Add(2 * time.Second) // now 7s > 6s window
	if tbl.IsNeighbour(addr.Address(5)) {
		t.Errorf("expected neighbour expired past the window")
	}
}

func TestNeighboursPrunesExpired(t *testing.T) {
	s, mock := clock.NewMock()
	tbl := New(s, 2*time.Second, 3)
	tbl.Observe(addr.Address(1))
	tbl.Observe(addr.Address(2))
	mock.Add(10 * time.Second)
	tbl.Observe(addr.Address(2))
	got := tbl.Neighbours()
	if len(got) != 1 || got[0] != addr.Address(2) {
		t.Errorf("expected only address 2 to remain, got %v", got)
	}
}
