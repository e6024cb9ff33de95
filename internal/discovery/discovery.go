// Package discovery implements the Discovery engine (§4.1): the per-request
// expanding-ring tree formation, response aggregation with bounded
// waiting, best-response selection, and parent/child bookkeeping described
// in the specification. This is the largest single piece of the protocol
// core, grounded on original_source/code/search-application.cc for the
// collaborator wiring, but implementing the codified (not the simpler)
// source variant per the specification's own Open Question resolution
// (§9): current_hops increments on receipt, origin starts at 0, checks
// ordered duplicate -> hops -> distance.
package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/clock"
	"github.com/blunan/Stratos/internal/neighbor"
	"github.com/blunan/Stratos/internal/ontology"
	"github.com/blunan/Stratos/internal/position"
	"github.com/blunan/Stratos/internal/route"
	"github.com/blunan/Stratos/internal/transport"
	"github.com/blunan/Stratos/internal/wire"
)

// RequestKey uniquely identifies a discovery round (§3).
type RequestKey struct {
	Origin    addr.Address
	Timestamp float64
}

// requestState is the per-key Request record of §3.
type requestState struct {
	parent          addr.Address
	hopDepth        byte
	maxHopsAllowed  byte
	originTimestamp float64
	pendingChildren map[addr.Address]bool
	responses       []wire.SearchResponse
	done            bool
}

// CompletionFunc is invoked once, at the originator only, when condense-
// and-forward runs (no pending children left, or the verify budget spent)
// with at least one response; it hands the full response list to the
// Schedule engine (§2).
type CompletionFunc func(key RequestKey, responses []wire.SearchResponse)

// Engine runs one Discovery protocol instance for a single node.
type Engine struct {
	self       addr.Address
	neighbors  *neighbor.Table
	ontology   *ontology.Catalog
	posOracle  position.Oracle
	routes     *route.Table
	transport  *transport.Transport
	scheduler  *clock.Scheduler
	verifyTime time.Duration
	onComplete CompletionFunc
	log        *logrus.Entry

	mu   sync.Mutex
	seen map[RequestKey]*requestState
}

// New creates a Discovery engine for self.
func New(
	self addr.Address,
	neighbors *neighbor.Table,
	cat *ontology.Catalog,
	posOracle position.Oracle,
	routes *route.Table,
	tr *transport.Transport,
	scheduler *clock.Scheduler,
	verifyTime time.Duration,
	onComplete CompletionFunc,
	log *logrus.Entry,
) *Engine {
	return &Engine{
		self:       self,
		neighbors:  neighbors,
		ontology:   cat,
		posOracle:  posOracle,
		routes:     routes,
		transport:  tr,
		scheduler:  scheduler,
		verifyTime: verifyTime,
		onComplete: onComplete,
		log:        log.WithField("component", "discovery"),
		seen:       make(map[RequestKey]*requestState),
	}
}

// Initiate constructs a fresh request for service and broadcasts it (§2
// step 1). maxDistance is the radius within which nodes may admit the
// request; node.Request passes the midpoint of the configured
// MinRequestDistance/MaxRequestDistance (§6).
func (e *Engine) Initiate(service string, maxHops byte, maxDistance float64) RequestKey {
	e.mu.Lock()
	ts := e.scheduler.Now()
	key := RequestKey{Origin: e.self, Timestamp: ts}
	for {
		if _, exists := e.seen[key]; !exists {
			break
		}
		ts += 1e-6
		key = RequestKey{Origin: e.self, Timestamp: ts}
	}

	// The originator does not seed a self-response: only nodes that admit
	// an incoming request act as a provider candidate (§4.1's self-
	// response is built "on admissible receipt"). An isolated originator
	// therefore starts with an empty responses list and may terminate
	// silently at verify (§8 scenario 6).
	state := &requestState{
		parent:          e.self,
		hopDepth:        0,
		maxHopsAllowed:  maxHops,
		originTimestamp: ts,
		pendingChildren: make(map[addr.Address]bool),
		responses:       nil,
	}
	e.seen[key] = state
	e.mu.Unlock()

	req := wire.SearchRequest{
		OriginAddress:      e.self,
		OriginTimestamp:    ts,
		OriginPosition:     e.posOracle.Position(),
		RequestedService:   service,
		MaxHopsAllowed:     maxHops,
		CurrentHops:        0,
		MaxDistanceAllowed: maxDistance,
	}
	e.transport.Broadcast(transport.Discovery, req.Bytes())
	e.armVerify(key, 0 == maxHops)
	return key
}

// OnSearchRequest handles an inbound SearchRequest from sender (§4.1).
func (e *Engine) OnSearchRequest(sender addr.Address, req wire.SearchRequest) {
	currentHops := req.CurrentHops + 1
	key := RequestKey{Origin: req.OriginAddress, Timestamp: req.OriginTimestamp}

	e.mu.Lock()
	if state, ok := e.seen[key]; ok {
		d := state.hopDepth
		switch {
		case currentHops < d:
			e.mu.Unlock()
			e.sendSearchError(sender, key)
			return
		case currentHops == d+2:
			state.pendingChildren[sender] = true
		}
		e.mu.Unlock()
		return
	}

	if currentHops > req.MaxHopsAllowed {
		e.mu.Unlock()
		return
	}
	dist := position.Distance(req.OriginPosition, e.posOracle.Position())
	if dist > req.MaxDistanceAllowed {
		e.mu.Unlock()
		return
	}

	offered, _ := e.ontology.BestOfferedFor(req.RequestedService)
	state := &requestState{
		parent:          sender,
		hopDepth:        currentHops,
		maxHopsAllowed:  req.MaxHopsAllowed,
		originTimestamp: req.OriginTimestamp,
		pendingChildren: make(map[addr.Address]bool),
		responses: []wire.SearchResponse{{
			OriginAddress:    req.OriginAddress,
			OriginTimestamp:  req.OriginTimestamp,
			ResponderAddress: e.self,
			HopDistance:      currentHops,
			PlanarDistance:   dist,
			OfferedService:   offered,
		}},
	}
	e.seen[key] = state
	e.mu.Unlock()

	e.routes.Set(req.OriginAddress, sender)

	out := req
	out.CurrentHops = currentHops
	e.transport.Broadcast(transport.Discovery, out.Bytes())
	e.armVerify(key, currentHops == req.MaxHopsAllowed)
}

// OnSearchResponse handles an inbound SearchResponse from sender (§4.1).
func (e *Engine) OnSearchResponse(sender addr.Address, resp wire.SearchResponse) {
	key := RequestKey{Origin: resp.OriginAddress, Timestamp: resp.OriginTimestamp}
	e.mu.Lock()
	state, ok := e.seen[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	state.responses = append(state.responses, resp)
	delete(state.pendingChildren, sender)
	e.mu.Unlock()

	e.routes.Set(resp.ResponderAddress, sender)
}

// OnSearchError handles an inbound SearchError from sender (§4.1).
func (e *Engine) OnSearchError(sender addr.Address, err wire.SearchError) {
	key := RequestKey{Origin: err.OriginAddress, Timestamp: err.OriginTimestamp}
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.seen[key]
	if !ok {
		return
	}
	delete(state.pendingChildren, sender)
}

func (e *Engine) sendSearchError(to addr.Address, key RequestKey) {
	msg := wire.SearchError{OriginAddress: key.Origin, OriginTimestamp: key.Timestamp}
	e.transport.Unicast(transport.Discovery, to, msg.Bytes())
}

// armVerify schedules the verify tick for key, or runs it immediately if
// this node is a leaf (hop_depth == max_hops_allowed).
func (e *Engine) armVerify(key RequestKey, leaf bool) {
	if leaf {
		e.verifyTick(key)
		return
	}
	e.scheduler.ScheduleAt(e.verifyTime, func() { e.verifyTick(key) })
}

func (e *Engine) verifyTick(key RequestKey) {
	e.mu.Lock()
	state, ok := e.seen[key]
	if !ok || state.done {
		e.mu.Unlock()
		return
	}
	for child := range state.pendingChildren {
		if !e.neighbors.IsNeighbour(child) {
			delete(state.pendingChildren, child)
		}
	}
	elapsed := e.scheduler.Now() - state.originTimestamp
	budget := float64(state.maxHopsAllowed-state.hopDepth) * e.verifyTime.Seconds()
	pending := len(state.pendingChildren)
	e.mu.Unlock()

	if pending == 0 || elapsed >= budget {
		e.condenseAndForward(key)
		return
	}
	e.scheduler.ScheduleAt(e.verifyTime, func() { e.verifyTick(key) })
}

func (e *Engine) condenseAndForward(key RequestKey) {
	e.mu.Lock()
	state, ok := e.seen[key]
	if !ok || state.done {
		e.mu.Unlock()
		return
	}
	state.done = true
	responses := make([]wire.SearchResponse, len(state.responses))
	copy(responses, state.responses)
	parent := state.parent
	e.mu.Unlock()

	if len(responses) == 0 {
		// Empty-responses originator (§4.1, §8 scenario 6): terminate
		// silently, no Schedule call. A non-origin node always has at
		// least its own self-response by the time it reaches condense.
		return
	}

	if key.Origin == e.self {
		e.onComplete(key, responses)
		return
	}
	best := SelectBest(responses)
	e.transport.Unicast(transport.Discovery, parent, best.Bytes())
}

// SelectBest applies the strict lexicographic order of §4.1: smallest
// semantic distance, then smallest hop distance, then smallest responder
// address.
func SelectBest(responses []wire.SearchResponse) wire.SearchResponse {
	best := responses[0]
	for _, r := range responses[1:] {
		if less(r, best) {
			best = r
		}
	}
	return best
}

func less(a, b wire.SearchResponse) bool {
	if a.OfferedService.SemanticDistance != b.OfferedService.SemanticDistance {
		return a.OfferedService.SemanticDistance < b.OfferedService.SemanticDistance
	}
	if a.HopDistance != b.HopDistance {
		return a.HopDistance < b.HopDistance
	}
	return a.ResponderAddress < b.ResponderAddress
}

// sortByBest returns a copy of responses ordered best-first by the same
// lexicographic rule SelectBest uses, for Schedule's build_schedule.
func sortByBest(responses []wire.SearchResponse) []wire.SearchResponse {
	out := make([]wire.SearchResponse, len(responses))
	copy(out, responses)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// SortByBest is exported for Schedule's consumption of a response list.
func SortByBest(responses []wire.SearchResponse) []wire.SearchResponse {
	return sortByBest(responses)
}

// Sweep expires done request state older than maxAge, per §5's "Resource
// lifetime" allowance.
func (e *Engine) Sweep(maxAge time.Duration) {
	now := e.scheduler.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, state := range e.seen {
		if state.done && now-state.originTimestamp > maxAge.Seconds() {
			delete(e.seen, key)
		}
	}
}
