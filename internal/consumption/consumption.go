// Package consumption implements the Consumption engine (§4.3/§4.4): the
// per-peer stop-and-wait dialogue (START -> DO* -> STOP) on both the
// requester and provider side, plus the shared route-and-forward helper for
// multi-hop dialogue datagrams (§4.5). Grounded on
// original_source/code/service-application.cc for the exact transition
// order (cancel keepalive before switching on flag; status set to START,
// not NULL, immediately on send), and on the teacher's fsm/fsm.go idiom of
// one method per logical state stepping through a switch on the inbound
// event -- here a switch on wire.Flag rather than FSM event constants.
package consumption

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
	"github.com/blunan/Stratos/internal/neighbor"
	"github.com/blunan/Stratos/internal/ontology"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/route"
	"github.com/blunan/Stratos/internal/transport"
	"github.com/blunan/Stratos/internal/wire"
)

type role int

const (
	roleRequester role = iota
	roleProvider
)

type dialogueKey struct {
	peer    addr.Address
	service string
}

type dialogueState struct {
	role           role
	status         wire.Flag
	packetsSent    int
	packetsReceived int
	maxPackets     int
	generation     int

	// requester-side bookkeeping for the Results collector (§3 [ADD]).
	origin    addr.Address
	requestTS float64
}

// DoneFunc is invoked on the requester side when a dialogue finishes or
// aborts (STOPPED received, keepalive expiry, or link break), driving
// Schedule's continue() (§4.2).
type DoneFunc func(peer addr.Address, service string)

// Engine runs the Consumption protocol for a single node, on both roles.
type Engine struct {
	self      addr.Address
	routes    *route.Table
	neighbors *neighbor.Table
	catalog   *ontology.Catalog
	transport *transport.Transport
	scheduler *clock.Scheduler
	results   *results.Collector
	helloTime time.Duration
	numberOfPacketsToSend int
	onDone    DoneFunc
	log       *logrus.Entry

	mu        sync.Mutex
	dialogues map[dialogueKey]*dialogueState
}

// New creates a Consumption engine for self.
func New(
	self addr.Address,
	routes *route.Table,
	neighbors *neighbor.Table,
	catalog *ontology.Catalog,
	tr *transport.Transport,
	scheduler *clock.Scheduler,
	collector *results.Collector,
	helloTime time.Duration,
	numberOfPacketsToSend int,
	onDone DoneFunc,
	log *logrus.Entry,
) *Engine {
	return &Engine{
		self:                  self,
		routes:                routes,
		neighbors:             neighbors,
		catalog:               catalog,
		transport:             tr,
		scheduler:             scheduler,
		results:               collector,
		helloTime:             helloTime,
		numberOfPacketsToSend: numberOfPacketsToSend,
		onDone:                onDone,
		log:                   log.WithField("component", "consumption"),
		dialogues:             make(map[dialogueKey]*dialogueState),
	}
}

// CreateAndSendRequest starts a requester-side dialogue with peer for
// service, requesting maxPackets packets (§4.3). origin/requestTS identify
// the discovery request this schedule step serves, for results reporting.
func (e *Engine) CreateAndSendRequest(peer addr.Address, service string, maxPackets int, origin addr.Address, requestTS float64) {
	key := dialogueKey{peer: peer, service: service}
	state := &dialogueState{
		role:       roleRequester,
		status:     wire.FlagStart,
		maxPackets: maxPackets,
		origin:     origin,
		requestTS:  requestTS,
	}
	e.mu.Lock()
	e.dialogues[key] = state
	e.mu.Unlock()

	msg := wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: peer, Service: service, Flag: wire.FlagStart}
	if !e.sendOwn(peer, msg, wire.TypeServiceRequest) {
		e.cancelService(peer, service)
		return
	}
	e.armKeepalive(key, state)
}

// OnServiceDatagram handles an inbound ServiceRequest or ServiceResponse
// datagram from sender, routing it onward if it is not addressed to this
// node (§4.5).
func (e *Engine) OnServiceDatagram(sender addr.Address, msg wire.ServiceRequestResponse, datagramType byte) {
	if msg.DestinationAddress != e.self {
		e.forward(sender, msg, datagramType)
		return
	}
	switch datagramType {
	case wire.TypeServiceRequest:
		e.onReceiveRequest(sender, msg)
	case wire.TypeServiceResponse:
		e.onReceiveResponse(sender, msg)
	}
}

// OnServiceError handles an inbound ServiceError (§4.3/§4.4/§4.5).
func (e *Engine) OnServiceError(sender addr.Address, se wire.ServiceError) {
	if se.DestinationAddress != e.self {
		e.forwardServiceError(sender, se)
		return
	}
	key := dialogueKey{peer: se.SenderAddress, service: se.Service}
	e.mu.Lock()
	state, ok := e.dialogues[key]
	if ok {
		delete(e.dialogues, key)
	}
	e.mu.Unlock()
	if ok && state.role == roleRequester {
		e.onDone(key.peer, key.service)
	}
}

// onReceiveResponse implements the requester-side transitions of §4.3.
func (e *Engine) onReceiveResponse(sender addr.Address, msg wire.ServiceRequestResponse) {
	key := dialogueKey{peer: sender, service: msg.Service}
	e.mu.Lock()
	state, ok := e.dialogues[key]
	if !ok {
		e.mu.Unlock()
		e.sendServiceError(sender, msg.Service)
		return
	}
	e.cancelKeepaliveLocked(key)

	switch {
	case state.status == wire.FlagStart && msg.Flag == wire.FlagStarted:
		state.status = wire.FlagDo
		e.mu.Unlock()
		if !e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagDo}, wire.TypeServiceRequest) {
			e.cancelService(sender, msg.Service)
			return
		}
		e.armKeepalive(key, state)

	case state.status == wire.FlagDo && msg.Flag == wire.FlagDo:
		if state.packetsReceived+1 <= state.maxPackets {
			state.packetsReceived++
			now := e.scheduler.Now()
			origin, requestTS := state.origin, state.requestTS
			e.mu.Unlock()
			e.results.OnPacket(origin, requestTS, now)
			if !e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagDo}, wire.TypeServiceRequest) {
				e.cancelService(sender, msg.Service)
				return
			}
			e.armKeepalive(key, state)
		} else {
			state.status = wire.FlagStop
			e.mu.Unlock()
			if !e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagStop}, wire.TypeServiceRequest) {
				e.cancelService(sender, msg.Service)
				return
			}
			e.armKeepalive(key, state)
		}

	case msg.Flag == wire.FlagStopped:
		e.mu.Unlock()
		e.cancelService(sender, msg.Service)

	default:
		e.mu.Unlock()
		e.sendServiceError(sender, msg.Service)
	}
}

// onReceiveRequest implements the provider-side transitions of §4.4.
func (e *Engine) onReceiveRequest(sender addr.Address, msg wire.ServiceRequestResponse) {
	key := dialogueKey{peer: sender, service: msg.Service}

	if !e.catalog.Provides(msg.Service) {
		e.sendServiceError(sender, msg.Service)
		return
	}

	e.mu.Lock()
	state, ok := e.dialogues[key]
	if !ok {
		state = &dialogueState{role: roleProvider, status: wire.FlagNull}
		e.dialogues[key] = state
	}
	e.cancelKeepaliveLocked(key)

	switch {
	case state.status == wire.FlagNull && msg.Flag == wire.FlagStart:
		state.status = wire.FlagDo
		e.mu.Unlock()
		e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagStarted}, wire.TypeServiceResponse)
		e.armKeepalive(key, state)

	case state.status == wire.FlagDo && msg.Flag == wire.FlagDo:
		if state.packetsSent < e.numberOfPacketsToSend {
			state.packetsSent++
			e.mu.Unlock()
			e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagDo}, wire.TypeServiceResponse)
			e.armKeepalive(key, state)
		} else {
			state.status = wire.FlagStopped
			e.mu.Unlock()
			e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagStopped}, wire.TypeServiceResponse)
		}

	case msg.Flag == wire.FlagStop:
		state.status = wire.FlagStopped
		e.mu.Unlock()
		e.sendOwn(sender, wire.ServiceRequestResponse{SenderAddress: e.self, DestinationAddress: sender, Service: msg.Service, Flag: wire.FlagStopped}, wire.TypeServiceResponse)

	default:
		e.mu.Unlock()
		e.sendServiceError(sender, msg.Service)
	}
}

// cancelService aborts a requester-side dialogue and notifies Schedule via
// onDone, equivalent to the source's cancel_service (§4.3/§4.6).
func (e *Engine) cancelService(peer addr.Address, service string) {
	key := dialogueKey{peer: peer, service: service}
	e.mu.Lock()
	delete(e.dialogues, key)
	e.mu.Unlock()
	e.onDone(peer, service)
}

func (e *Engine) sendServiceError(to addr.Address, service string) {
	se := wire.ServiceError{SenderAddress: e.self, DestinationAddress: to, Service: service}
	e.sendTowards(to, se.Bytes())
}

// sendOwn sends a locally-originated dialogue datagram toward destination.
// Returns false if the next hop is unreachable; requester-side callers then
// abort the dialogue through cancelService (§4.5), while provider-side
// callers ignore the result.
func (e *Engine) sendOwn(destination addr.Address, msg wire.ServiceRequestResponse, datagramType byte) bool {
	nextHop, ok := e.routes.Get(destination)
	if !ok || !e.neighbors.IsNeighbour(nextHop) {
		return false
	}
	e.transport.Unicast(transport.Service, nextHop, msg.BytesAs(datagramType))
	return true
}

func (e *Engine) sendTowards(destination addr.Address, datagram []byte) {
	nextHop, ok := e.routes.Get(destination)
	if !ok || !e.neighbors.IsNeighbour(nextHop) {
		return
	}
	e.transport.Unicast(transport.Service, nextHop, datagram)
}

// forward implements the shared route-and-forward behaviour of §4.5 for a
// datagram this node is relaying on behalf of another pair.
func (e *Engine) forward(sender addr.Address, msg wire.ServiceRequestResponse, datagramType byte) {
	nextHop, ok := e.routes.Get(msg.DestinationAddress)
	if ok && e.neighbors.IsNeighbour(nextHop) {
		e.transport.Unicast(transport.Service, nextHop, msg.BytesAs(datagramType))
		return
	}
	se := wire.ServiceError{SenderAddress: msg.DestinationAddress, DestinationAddress: msg.SenderAddress, Service: msg.Service}
	e.transport.Unicast(transport.Service, sender, se.Bytes())
}

// forwardServiceError relays a ServiceError this node is not the
// destination of, per the same route-and-forward rule of §4.5.
func (e *Engine) forwardServiceError(sender addr.Address, se wire.ServiceError) {
	nextHop, ok := e.routes.Get(se.DestinationAddress)
	if ok && e.neighbors.IsNeighbour(nextHop) {
		e.transport.Unicast(transport.Service, nextHop, se.Bytes())
		return
	}
	bounced := wire.ServiceError{SenderAddress: se.DestinationAddress, DestinationAddress: se.SenderAddress, Service: se.Service}
	e.transport.Unicast(transport.Service, sender, bounced.Bytes())
}

func (e *Engine) armKeepalive(key dialogueKey, state *dialogueState) {
	e.mu.Lock()
	state.generation++
	gen := state.generation
	e.mu.Unlock()

	e.scheduler.ScheduleAt(e.helloTime, func() {
		e.mu.Lock()
		cur, ok := e.dialogues[key]
		if !ok || cur != state || cur.generation != gen {
			e.mu.Unlock()
			return
		}
		delete(e.dialogues, key)
		e.mu.Unlock()
		if state.role == roleRequester {
			e.onDone(key.peer, key.service)
		}
	})
}

func (e *Engine) cancelKeepalive(key dialogueKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelKeepaliveLocked(key)
}

// cancelKeepaliveLocked bumps the dialogue's generation so any in-flight
// keepalive callback becomes a stale no-op (§5 cancellation semantics).
// Caller must already hold e.mu.
func (e *Engine) cancelKeepaliveLocked(key dialogueKey) {
	if state, ok := e.dialogues[key]; ok {
		state.generation++
	}
}
