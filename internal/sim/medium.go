package sim

import (
	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/node"
	"github.com/blunan/Stratos/internal/position"
	"github.com/blunan/Stratos/internal/transport"
)

// radioMedium is the simulation harness's transport.Medium: broadcasts
// reach every registered node within radioRange of the sender's current
// position (the substitute for ns-3's YansWifiChannel in
// original_source/code/stratos.cc's CreateDevices); unicasts are delivered
// only to the one destination, and only while it is within radioRange of
// the sender.
type radioMedium struct {
	radioRange float64
	peers      map[addr.Address]*peer
}

type peer struct {
	node *node.Node
	pos  position.Oracle
}

func newRadioMedium(radioRange float64) *radioMedium {
	return &radioMedium{radioRange: radioRange, peers: make(map[addr.Address]*peer)}
}

func (m *radioMedium) register(a addr.Address, n *node.Node, pos position.Oracle) {
	m.peers[a] = &peer{node: n, pos: pos}
}

// Broadcast implements transport.Medium.
func (m *radioMedium) Broadcast(port transport.Port, from addr.Address, datagram []byte) {
	sender, ok := m.peers[from]
	if !ok {
		return
	}
	origin := sender.pos.Position()
	for a, p := range m.peers {
		if a == from {
			continue
		}
		if position.Distance(origin, p.pos.Position()) > m.radioRange {
			continue
		}
		p.node.Dispatch(port, from, datagram)
	}
}

// Unicast implements transport.Medium. Delivery silently fails if the
// destination is no longer registered or out of range, which the protocol
// core already tolerates as a link break (§7).
func (m *radioMedium) Unicast(port transport.Port, from, to addr.Address, datagram []byte) {
	sender, ok := m.peers[from]
	if !ok {
		return
	}
	dest, ok := m.peers[to]
	if !ok {
		return
	}
	if position.Distance(sender.pos.Position(), dest.pos.Position()) > m.radioRange {
		return
	}
	dest.node.Dispatch(port, from, datagram)
}
