// Package transport implements the three STRATOS ports (discovery, service,
// hello) as jittered send endpoints over a pluggable Medium; inbound
// datagrams are handed by the Medium to node.Node.Dispatch. The only Medium
// implementations in this module are in-process ones (the simulation
// harness's and the tests'); no net.PacketConn-backed Medium is included.
package transport

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
)

// Port names the three logical ports datagrams are sent on (§6).
type Port int

const (
	Discovery Port = iota
	Service
	HelloPort
)

// Medium delivers a datagram from one address to one or more others.
// Broadcast implementations fan out to every other node currently in
// range; Unicast implementations deliver to exactly one destination (and
// may simulate loss by dropping silently, which the protocol core must
// already tolerate per §7).
type Medium interface {
	Broadcast(port Port, from addr.Address, datagram []byte)
	Unicast(port Port, from, to addr.Address, datagram []byte)
}

// Transport sends jittered datagrams on behalf of one node. Every Broadcast
// and Unicast call enqueues work on the scheduler after a random jitter delay (§6); it
// never blocks.
type Transport struct {
	self      addr.Address
	medium    Medium
	scheduler *clock.Scheduler
	minJitter time.Duration
	maxJitter time.Duration
	log       *logrus.Entry
}

// New creates a Transport bound to self, sending through medium with jitter
// sampled uniformly from [minJitter, maxJitter).
func New(self addr.Address, medium Medium, scheduler *clock.Scheduler, minJitter, maxJitter time.Duration, log *logrus.Entry) *Transport {
	return &Transport{
		self:      self,
		medium:    medium,
		scheduler: scheduler,
		minJitter: minJitter,
		maxJitter: maxJitter,
		log:       log.WithField("component", "transport"),
	}
}

// Broadcast schedules a jittered broadcast send on the given port.
func (t *Transport) Broadcast(port Port, datagram []byte) {
	delay := clock.Jitter(t.minJitter, t.maxJitter)
	t.scheduler.ScheduleAt(delay, func() {
		t.medium.Broadcast(port, t.self, datagram)
	})
}

// Unicast schedules a jittered unicast send on the given port.
func (t *Transport) Unicast(port Port, to addr.Address, datagram []byte) {
	if to == t.self {
		t.log.WithField("to", to).Warn("refusing to unicast to self")
		return
	}
	delay := clock.Jitter(t.minJitter, t.maxJitter)
	t.scheduler.ScheduleAt(delay, func() {
		t.medium.Unicast(port, t.self, to, datagram)
	})
}
