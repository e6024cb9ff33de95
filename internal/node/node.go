// Package node wires one device's collaborators and engines together into
// the single per-node logical actor described in §5's Design Notes: it
// owns the mutable tables (by delegating to the engines, each of which
// already serialises its own table) and is the one place that dispatches
// an inbound datagram to the right engine and threads callbacks between
// Discovery, Schedule and Consumption. Shaped after the teacher's
// speaker/speaker.go Speaker/Peer construction (New, functional options),
// generalized from "a BGP speaker with peers" to "a STRATOS node with
// collaborators".
package node

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
	"github.com/blunan/Stratos/internal/config"
	"github.com/blunan/Stratos/internal/consumption"
	"github.com/blunan/Stratos/internal/discovery"
	"github.com/blunan/Stratos/internal/neighbor"
	"github.com/blunan/Stratos/internal/ontology"
	"github.com/blunan/Stratos/internal/position"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/route"
	"github.com/blunan/Stratos/internal/schedule"
	"github.com/blunan/Stratos/internal/transport"
	"github.com/blunan/Stratos/internal/wire"
)

// Node is one STRATOS device: an address, a position, a local catalog of
// offered services, and the three engines operating over a shared set of
// collaborators.
type Node struct {
	Self      addr.Address
	Neighbors *neighbor.Table
	Catalog   *ontology.Catalog
	Routes    *route.Table

	discovery   *discovery.Engine
	consumption *consumption.Engine
	transport   *transport.Transport
	scheduler   *clock.Scheduler
	results     *results.Collector
	posOracle   position.Oracle
	cfg         config.Config
	log         *logrus.Entry

	mu             sync.Mutex
	pendingService map[discovery.RequestKey]string
	schedules      map[discovery.RequestKey]*schedule.Engine
	dialogueOwner  map[dialogueID]discovery.RequestKey
}

type dialogueID struct {
	peer    addr.Address
	service string
}

// Option configures a Node at construction.
type Option func(*Node)

// WithOfferedServices seeds the node's ontology catalog.
func WithOfferedServices(services []wire.OfferedService) Option {
	return func(n *Node) {
		n.Catalog = ontology.New(ontology.WithOffered(services))
	}
}

// New creates a Node bound to self, communicating over medium, scheduled by
// scheduler, reporting to collector, configured by cfg.
func New(
	self addr.Address,
	medium transport.Medium,
	scheduler *clock.Scheduler,
	posOracle position.Oracle,
	collector *results.Collector,
	cfg config.Config,
	log *logrus.Entry,
	opts ...Option,
) *Node {
	cfg = cfg.Resolved()
	entry := log.WithField("node", self.String())

	n := &Node{
		Self:           self,
		Neighbors:      neighbor.New(scheduler, cfg.HelloTime, cfg.MaxTimesNotSeen),
		Catalog:        ontology.New(),
		Routes:         route.New(),
		scheduler:      scheduler,
		results:        collector,
		posOracle:      posOracle,
		cfg:            cfg,
		log:            entry,
		pendingService: make(map[discovery.RequestKey]string),
		schedules:      make(map[discovery.RequestKey]*schedule.Engine),
		dialogueOwner:  make(map[dialogueID]discovery.RequestKey),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.transport = transport.New(self, medium, scheduler, cfg.MinJitter, cfg.MaxJitter, entry)
	n.discovery = discovery.New(self, n.Neighbors, n.Catalog, posOracle, n.Routes, n.transport, scheduler, cfg.VerifyTime, n.onDiscoveryComplete, entry)
	n.consumption = consumption.New(self, n.Routes, n.Neighbors, n.Catalog, n.transport, scheduler, collector, cfg.HelloTime, cfg.NumberOfPacketsToSend, n.onDialogueDone, entry)

	n.startHello()
	n.startSweep()
	return n
}

// Dispatch decodes an inbound datagram on the given port and routes it to
// the matching engine, per §6's port layout.
func (n *Node) Dispatch(port transport.Port, sender addr.Address, datagram []byte) {
	n.Neighbors.Observe(sender)
	if port == transport.HelloPort {
		return
	}

	msg, typ, err := wire.Decode(datagram)
	if err != nil {
		n.log.WithError(err).WithField("peer", sender.String()).Warn("dropping malformed datagram")
		return
	}

	switch port {
	case transport.Discovery:
		switch typ {
		case wire.TypeSearchRequest:
			n.discovery.OnSearchRequest(sender, msg.(wire.SearchRequest))
		case wire.TypeSearchResponse:
			n.discovery.OnSearchResponse(sender, msg.(wire.SearchResponse))
		case wire.TypeSearchError:
			n.discovery.OnSearchError(sender, msg.(wire.SearchError))
		}
	case transport.Service:
		switch typ {
		case wire.TypeServiceRequest, wire.TypeServiceResponse:
			n.consumption.OnServiceDatagram(sender, msg.(wire.ServiceRequestResponse), typ)
		case wire.TypeServiceError:
			n.consumption.OnServiceError(sender, msg.(wire.ServiceError))
		}
	}
}

// Request originates a discovery request for service, per §2 step 1.
func (n *Node) Request(service string) discovery.RequestKey {
	maxDistance := n.cfg.MinRequestDistance + (n.cfg.MaxRequestDistance-n.cfg.MinRequestDistance)*0.5
	key := n.discovery.Initiate(service, n.cfg.MaxHops, maxDistance)
	n.mu.Lock()
	n.pendingService[key] = service
	n.mu.Unlock()
	n.results.OnRequest(n.Self, key.Timestamp, n.posOracle.Position(), service, maxDistance)
	return key
}

// onDiscoveryComplete is Discovery's CompletionFunc: it builds a Schedule
// engine for the finished request and hands it the response list (§2 steps
// 4-5).
func (n *Node) onDiscoveryComplete(key discovery.RequestKey, responses []wire.SearchResponse) {
	n.mu.Lock()
	service := n.pendingService[key]
	delete(n.pendingService, key)
	n.mu.Unlock()

	sched := schedule.New(n.cfg.MaxScheduleSize, func(peer addr.Address, svc string, packets int) {
		n.mu.Lock()
		n.dialogueOwner[dialogueID{peer, svc}] = key
		n.mu.Unlock()
		n.consumption.CreateAndSendRequest(peer, svc, packets, key.Origin, key.Timestamp)
	}, n.results, n.log)

	n.mu.Lock()
	n.schedules[key] = sched
	n.mu.Unlock()

	sched.Execute(service, responses, n.cfg.NumberOfPacketsToSend)
}

// onDialogueDone is Consumption's DoneFunc: it drives the owning Schedule's
// continue() (§4.2).
func (n *Node) onDialogueDone(peer addr.Address, service string) {
	n.mu.Lock()
	id := dialogueID{peer, service}
	key, ok := n.dialogueOwner[id]
	if ok {
		delete(n.dialogueOwner, id)
	}
	sched := n.schedules[key]
	n.mu.Unlock()

	if ok && sched != nil {
		sched.Continue()
	}
}

func (n *Node) startHello() {
	var tick func()
	tick = func() {
		n.transport.Broadcast(transport.HelloPort, wire.Hello{}.Bytes())
		n.scheduler.ScheduleAt(n.cfg.HelloTime, tick)
	}
	n.scheduler.ScheduleAt(clock.Jitter(n.cfg.MinJitter, n.cfg.MaxJitter), tick)
}

func (n *Node) startSweep() {
	var tick func()
	tick = func() {
		n.discovery.Sweep(n.cfg.MaxRequestTime)
		n.scheduler.ScheduleAt(n.cfg.MaxRequestTime, tick)
	}
	n.scheduler.ScheduleAt(n.cfg.MaxRequestTime, tick)
}
