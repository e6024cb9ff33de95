// Package results implements the Results collector (§6): on_request,
// on_packet, on_response_distance, exposed as Prometheus metrics so a
// simulation run's aggregate behaviour can be scraped or printed at the
// end of a run. Supplements the distilled contract with the richer
// per-request record original_source/code's ResultsApplication keeps
// (activation, request timestamp/position/service/distance), per
// SPEC_FULL.md §3.
package results

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/position"
)

// Request is the supplemental per-request record original_source's
// ResultsApplication tracked beyond the distilled on_request/on_packet/
// on_response_distance triple.
type Request struct {
	Active    bool
	Timestamp float64
	Position  position.Position
	Service   string
	MaxDistance float64
}

// Collector accumulates per-run counters and histograms. One Collector is
// shared by every node in a simulation run, labelled by RunID so multiple
// runs can be told apart when scraped together.
type Collector struct {
	RunID string

	mu       sync.Mutex
	requests map[addr.Address]map[float64]*Request

	requestsTotal  prometheus.Counter
	packetsTotal   prometheus.Counter
	responseDist   prometheus.Histogram
	packetLatency  prometheus.Histogram
}

// New creates a Collector and registers its metrics with reg. Passing a
// fresh prometheus.NewRegistry() per run keeps runs independent; the
// default registry is fine for a single long-lived process.
func New(reg prometheus.Registerer) *Collector {
	runID := uuid.NewString()
	c := &Collector{
		RunID:    runID,
		requests: make(map[addr.Address]map[float64]*Request),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "stratos_requests_total",
			Help:        "Number of discovery requests originated.",
			ConstLabels: prometheus.Labels{"run": runID},
		}),
		packetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "stratos_packets_total",
			Help:        "Number of dialogue packets received by requesters.",
			ConstLabels: prometheus.Labels{"run": runID},
		}),
		responseDist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "stratos_response_semantic_distance",
			Help:        "Semantic distance of the selected discovery response.",
			Buckets:     prometheus.LinearBuckets(0, 1, 10),
			ConstLabels: prometheus.Labels{"run": runID},
		}),
		packetLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "stratos_packet_latency_seconds",
			Help:        "Time between request origination and each packet's arrival.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"run": runID},
		}),
	}
	reg.MustRegister(c.requestsTotal, c.packetsTotal, c.responseDist, c.packetLatency)
	return c
}

// OnRequest records that origin originated a request for service at ts from
// pos with the given max distance, per §6's on_request(...).
func (c *Collector) OnRequest(origin addr.Address, ts float64, pos position.Position, service string, maxDistance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requests[origin] == nil {
		c.requests[origin] = make(map[float64]*Request)
	}
	c.requests[origin][ts] = &Request{
		Active:      true,
		Timestamp:   ts,
		Position:    pos,
		Service:     service,
		MaxDistance: maxDistance,
	}
	c.requestsTotal.Inc()
}

// OnPacket records one dialogue packet's arrival at time ts, per §6's
// on_packet(ts). Latency is computed against the originating request when
// known.
func (c *Collector) OnPacket(origin addr.Address, requestTS, ts float64) {
	c.packetsTotal.Inc()
	c.mu.Lock()
	req := c.requests[origin][requestTS]
	c.mu.Unlock()
	if req != nil {
		c.packetLatency.Observe(ts - req.Timestamp)
	}
}

// OnResponseDistance records the semantic distance of the response chosen
// by Schedule's build_schedule, per §6's on_response_distance(d).
func (c *Collector) OnResponseDistance(d int32) {
	c.responseDist.Observe(float64(d))
}
