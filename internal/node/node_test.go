package node

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
	"github.com/blunan/Stratos/internal/config"
	"github.com/blunan/Stratos/internal/position"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/transport"
	"github.com/blunan/Stratos/internal/wire"
)

// fanoutMedium delivers every broadcast to every other registered node and
// every unicast directly, with no range gating -- sufficient for a small
// two/three-node wiring test without pulling in the full sim harness.
type fanoutMedium struct {
	nodes map[addr.Address]*Node
}

func newFanoutMedium() *fanoutMedium {
	return &fanoutMedium{nodes: make(map[addr.Address]*Node)}
}

func (m *fanoutMedium) register(a addr.Address, n *Node) { m.nodes[a] = n }

func (m *fanoutMedium) Broadcast(port transport.Port, from addr.Address, datagram []byte) {
	for a, n := range m.nodes {
		if a == from {
			continue
		}
		n.Dispatch(port, from, datagram)
	}
}

func (m *fanoutMedium) Unicast(port transport.Port, from, to addr.Address, datagram []byte) {
	if n, ok := m.nodes[to]; ok {
		n.Dispatch(port, from, datagram)
	}
}

func newTestNode(self addr.Address, medium *fanoutMedium, s *clock.Scheduler, collector *results.Collector, offered []wire.OfferedService) *Node {
	cfg := config.Default()
	cfg.VerifyTime = 10 * time.Millisecond
	cfg.HelloTime = 50 * time.Millisecond
	cfg.MinJitter = time.Microsecond
	cfg.MaxJitter = 2 * time.Microsecond
	pos := position.Static{Pos: position.Position{X: 0, Y: 0}}
	n := New(self, medium, s, pos, collector, cfg, logrus.NewEntry(logrus.New()), WithOfferedServices(offered))
	medium.register(self, n)
	return n
}

func TestRequestEndToEndDiscoversProvider(t *testing.T) {
	s, mock := clock.NewMock()
	medium := newFanoutMedium()
	collector := results.New(prometheus.NewRegistry())

	requester := newTestNode(addr.Address(1), medium, s, collector, nil)
	provider := newTestNode(addr.Address(3), medium, s, collector, []wire.OfferedService{{Name: "printer", SemanticDistance: 0}})

	// Prime neighbour liveness via hello so route-and-forward treats the
	// direct link as reachable, without waiting for the real hello cadence.
	requester.Neighbors.Observe(addr.Address(3))
	provider.Neighbors.Observe(addr.Address(1))

	requester.Request("printer")
	mock.Add(200 * time.Millisecond)

	nextHop, ok := requester.Routes.Get(addr.Address(3))
	require.True(t, ok)
	require.Equal(t, addr.Address(3), nextHop)
}

func TestDispatchIgnoresHelloPort(t *testing.T) {
	s, _ := clock.NewMock()
	medium := newFanoutMedium()
	collector := results.New(prometheus.NewRegistry())
	n := newTestNode(addr.Address(1), medium, s, collector, nil)

	require.NotPanics(t, func() {
		n.Dispatch(transport.HelloPort, addr.Address(2), wire.Hello{}.Bytes())
	})
	require.True(t, n.Neighbors.IsNeighbour(addr.Address(2)))
}
