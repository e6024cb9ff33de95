// Package schedule implements the Schedule engine (§4.2): builds an ordered
// list of candidate providers from a Discovery response list and drives
// them one at a time via the Consumption engine.
package schedule

import (
	"github.com/sirupsen/logrus"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/discovery"
	"github.com/blunan/Stratos/internal/queue"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/wire"
)

// StartFunc is invoked to engage one scheduled peer via Consumption.
type StartFunc func(peer addr.Address, service string, packets int)

// Engine drives a single schedule to completion, peer by peer.
type Engine struct {
	maxSize   int
	start     StartFunc
	results   *results.Collector
	log       *logrus.Entry
	remaining *queue.Queue[wire.SearchResponse]
	perNode   int
	service   string
}

// New creates a Schedule engine. start is called once per engaged peer;
// Continue must be called by the Consumption engine when a dialogue
// finishes or aborts.
func New(maxSize int, start StartFunc, collector *results.Collector, log *logrus.Entry) *Engine {
	return &Engine{
		maxSize: maxSize,
		start:   start,
		results: collector,
		log:     log.WithField("component", "schedule"),
	}
}

// BuildSchedule implements build_schedule (§4.2): from responses, forms an
// ordered candidate list bounded by maxSize, all sharing the best semantic
// distance.
func BuildSchedule(responses []wire.SearchResponse, maxSize int) []wire.SearchResponse {
	if len(responses) == 0 {
		return nil
	}
	working := discovery.SortByBest(responses)
	best := working[0]
	sched := []wire.SearchResponse{best}
	working = working[1:]

	for len(sched) < maxSize && len(working) > 0 {
		candidate := working[0]
		if candidate.OfferedService.SemanticDistance > best.OfferedService.SemanticDistance {
			break
		}
		sched = append(sched, candidate)
		working = working[1:]
	}
	return sched
}

// Execute starts driving the given response list for the given service and
// total packet count (§4.2's execute(schedule)).
func (e *Engine) Execute(service string, responses []wire.SearchResponse, totalPackets int) {
	sched := BuildSchedule(responses, e.maxSize)
	if len(sched) == 0 {
		return
	}
	e.results.OnResponseDistance(sched[0].OfferedService.SemanticDistance)

	e.service = service
	e.perNode = totalPackets / len(sched)
	firstCount := e.perNode + totalPackets%len(sched)

	head := sched[0]
	e.remaining = queue.New[wire.SearchResponse]()
	for _, r := range sched[1:] {
		e.remaining.Push(r)
	}
	e.start(head.ResponderAddress, service, firstCount)
}

// Continue implements continue() (§4.2): called back by Consumption when a
// dialogue finishes or aborts. Pops the next scheduled peer, if any, and
// engages it with the per-node packet count.
func (e *Engine) Continue() {
	if e.remaining == nil || e.remaining.Len() == 0 {
		return
	}
	head := e.remaining.Pop()
	e.start(head.ResponderAddress, e.service, e.perNode)
}
