package consumption

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
	"github.com/blunan/Stratos/internal/neighbor"
	"github.com/blunan/Stratos/internal/ontology"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/route"
	"github.com/blunan/Stratos/internal/transport"
	"github.com/blunan/Stratos/internal/wire"
)

type capturingMedium struct {
	unicasts []struct {
		from, to addr.Address
		datagram []byte
	}
}

func (m *capturingMedium) Broadcast(transport.Port, addr.Address, []byte) {}
func (m *capturingMedium) Unicast(port transport.Port, from, to addr.Address, datagram []byte) {
	m.unicasts = append(m.unicasts, struct {
		from, to addr.Address
		datagram []byte
	}{from, to, datagram})
}

func newEngine(self addr.Address, offers []wire.OfferedService, done DoneFunc) (*Engine, *route.Table, *neighbor.Table, *capturingMedium, *clock.Scheduler, *clock.Mock) {
	s, mock := clock.NewMock()
	routes := route.New()
	nb := neighbor.New(s, 2*time.Second, 3)
	cat := ontology.New(ontology.WithOffered(offers))
	medium := &capturingMedium{}
	tr := transport.New(self, medium, s, time.Millisecond, 2*time.Millisecond, logrus.NewEntry(logrus.New()))
	collector := results.New(prometheus.NewRegistry())
	if done == nil {
		done = func(addr.Address, string) {}
	}
	e := New(self, routes, nb, cat, tr, s, collector, 2*time.Second, 10, done, logrus.NewEntry(logrus.New()))
	return e, routes, nb, medium, s, mock
}

func directRoute(routes *route.Table, nb *neighbor.Table, s *clock.Scheduler, self, peer addr.Address) {
	routes.Set(peer, peer)
	nb.Observe(peer)
	_ = s
}

func TestFullDialogueRequesterReceivesAllPackets(t *testing.T) {
	requester, routes, nb, medium, s, mock := newEngine(addr.Address(1), nil, nil)
	provider, pRoutes, pNb, pMedium, _, _ := newEngineWithScheduler(addr.Address(2), []wire.OfferedService{{Name: "printer", SemanticDistance: 0}}, nil, s)

	directRoute(routes, nb, s, 1, 2)
	directRoute(pRoutes, pNb, s, 2, 1)

	requester.CreateAndSendRequest(addr.Address(2), "printer", 2, addr.Address(1), 0)
	mock.Add(5 * time.Millisecond)
	require.Len(t, medium.unicasts, 1) // START sent

	// Deliver START to provider.
	decodeAndDeliver(t, provider, medium.unicasts[len(medium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	require.NotEmpty(t, pMedium.unicasts) // STARTED sent back

	decodeAndDeliver(t, requester, pMedium.unicasts[len(pMedium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	require.True(t, len(medium.unicasts) >= 2) // DO sent

	decodeAndDeliver(t, provider, medium.unicasts[len(medium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	decodeAndDeliver(t, requester, pMedium.unicasts[len(pMedium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	// Second DO round: requester counts its second packet and asks for more.
	decodeAndDeliver(t, provider, medium.unicasts[len(medium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	decodeAndDeliver(t, requester, pMedium.unicasts[len(pMedium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	// Third DO round: requester already has maxPackets=2, so it sends STOP.
	decodeAndDeliver(t, provider, medium.unicasts[len(medium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)
	decodeAndDeliver(t, requester, pMedium.unicasts[len(pMedium.unicasts)-1].datagram)
	mock.Add(5 * time.Millisecond)

	last, _, err := wire.Decode(medium.unicasts[len(medium.unicasts)-1].datagram)
	require.NoError(t, err)
	require.Equal(t, wire.FlagStop, last.(wire.ServiceRequestResponse).Flag)
}

func newEngineWithScheduler(self addr.Address, offers []wire.OfferedService, done DoneFunc, s *clock.Scheduler) (*Engine, *route.Table, *neighbor.Table, *capturingMedium, *clock.Scheduler) {
	routes := route.New()
	nb := neighbor.New(s, 2*time.Second, 3)
	cat := ontology.New(ontology.WithOffered(offers))
	medium := &capturingMedium{}
	tr := transport.New(self, medium, s, time.Millisecond, 2*time.Millisecond, logrus.NewEntry(logrus.New()))
	collector := results.New(prometheus.NewRegistry())
	if done == nil {
		done = func(addr.Address, string) {}
	}
	e := New(self, routes, nb, cat, tr, s, collector, 2*time.Second, 10, done, logrus.NewEntry(logrus.New()))
	return e, routes, nb, medium, s
}

func decodeAndDeliver(t *testing.T, e *Engine, datagram []byte) {
	t.Helper()
	decoded, typ, err := wire.Decode(datagram)
	require.NoError(t, err)
	msg := decoded.(wire.ServiceRequestResponse)
	e.OnServiceDatagram(msg.SenderAddress, msg, typ)
}

func TestKeepaliveExpiryAbortsRequesterDialogue(t *testing.T) {
	var doneCalled bool
	requester, routes, nb, _, s, mock := newEngine(addr.Address(1), nil, func(addr.Address, string) { doneCalled = true })
	routes.Set(addr.Address(2), addr.Address(2))
	nb.Observe(addr.Address(2))

	requester.CreateAndSendRequest(addr.Address(2), "printer", 5, addr.Address(1), 0)
	mock.Add(5 * time.Millisecond)
	mock.Add(3 * time.Second) // keepalive (2s) expires with no STARTED received
	require.True(t, doneCalled)
}

func TestUnreachableNextHopAbortsImmediately(t *testing.T) {
	var doneCalled bool
	requester, _, _, _, _, _ := newEngine(addr.Address(1), nil, func(addr.Address, string) { doneCalled = true })
	// No route installed, no neighbour observed -> CreateAndSendRequest must
	// abort immediately via cancel_service (§4.5).
	requester.CreateAndSendRequest(addr.Address(99), "printer", 5, addr.Address(1), 0)
	require.True(t, doneCalled)
}

func TestProviderRejectsUnservicedRequest(t *testing.T) {
	provider, routes, nb, medium, s, mock := newEngine(addr.Address(2), []wire.OfferedService{{Name: "scanner", SemanticDistance: 0}}, nil)
	routes.Set(addr.Address(1), addr.Address(1))
	nb.Observe(addr.Address(1))
	_ = s

	req := wire.ServiceRequestResponse{SenderAddress: addr.Address(1), DestinationAddress: addr.Address(2), Service: "printer", Flag: wire.FlagStart}
	provider.OnServiceDatagram(addr.Address(1), req, wire.TypeServiceRequest)
	mock.Add(5 * time.Millisecond)
	require.Len(t, medium.unicasts, 1)
	decoded, typ, err := wire.Decode(medium.unicasts[0].datagram)
	require.NoError(t, err)
	require.Equal(t, wire.TypeServiceError, typ)
	require.Equal(t, "printer", decoded.(wire.ServiceError).Service)
}
