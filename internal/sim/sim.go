// Package sim implements the discrete-event simulation harness that plays
// the role of original_source/code/stratos.cc's Stratos::Run: it builds a
// population of nMobile nodes with random-waypoint mobility, wires them to
// a shared in-memory radio medium, schedules nRequesters of them to issue
// one discovery request apiece at a random time, and drives the whole run
// to completion on a mock clock so it finishes instantly regardless of the
// simulated duration passed to Run.
package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/blunan/Stratos/internal/addr"
	iclock "github.com/blunan/Stratos/internal/clock"
	"github.com/blunan/Stratos/internal/config"
	"github.com/blunan/Stratos/internal/node"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/wire"
)

// Default tuning for the parts of the original ns-3 scenario the
// specification's Recognised configuration doesn't name (area size, radio
// range, mobility speed/pause), taken from
// original_source/code/stratos.cc's CreateMobileNodes/GetPositionAllocator.
const (
	AreaSize     = 1000.0 // metres, square simulation area
	RadioRange   = 250.0  // metres
	MinSpeed     = 1.0    // m/s
	MaxSpeed     = 4.0    // m/s
	PauseSeconds = 40.0
	mobilityTick = 1 * time.Second
)

// Simulation owns one run's node population, medium and clock.
type Simulation struct {
	cfg       config.Config
	scheduler *iclock.Scheduler
	mock      *clock.Mock
	medium    *radioMedium
	results   *results.Collector
	registry  *prometheus.Registry
	log       *logrus.Entry
	rng       *rand.Rand

	nodes     []*node.Node
	mobilities []*waypointMobility
}

// New builds a simulation population per cfg: nMobile nodes, each offering
// nServices synthetic services, wired to a shared radio medium.
func New(cfg config.Config, log *logrus.Entry, seed int64) *Simulation {
	cfg = cfg.Resolved()
	scheduler, mock := iclock.NewMock()
	registry := prometheus.NewRegistry()
	collector := results.New(registry)
	rng := rand.New(rand.NewSource(seed))

	s := &Simulation{
		cfg:       cfg,
		scheduler: scheduler,
		mock:      mock,
		medium:    newRadioMedium(RadioRange),
		results:   collector,
		registry:  registry,
		log:       log,
		rng:       rng,
	}

	for i := 0; i < cfg.NMobile; i++ {
		s.addNode(i)
	}
	return s
}

// serviceCatalogSize is the universe of distinct service names a run draws
// from; large enough that nServices-per-node offerings rarely collide but
// small enough that requests commonly find a provider.
func (s *Simulation) serviceCatalogSize() int {
	if n := s.cfg.NServices * 3; n > 10 {
		return n
	}
	return 10
}

func (s *Simulation) addNode(i int) {
	self := addr.Address(i + 1)
	mobility := newWaypointMobility(s.rng, AreaSize, MinSpeed, MaxSpeed, PauseSeconds)

	catalogSize := s.serviceCatalogSize()
	offered := make([]wire.OfferedService, 0, s.cfg.NServices)
	for j := 0; j < s.cfg.NServices; j++ {
		offered = append(offered, wire.OfferedService{
			Name:             fmt.Sprintf("service-%d", s.rng.Intn(catalogSize)),
			SemanticDistance: 0,
		})
	}

	n := node.New(self, s.medium, s.scheduler, mobility, s.results, s.cfg, s.log, node.WithOfferedServices(offered))
	s.nodes = append(s.nodes, n)
	s.mobilities = append(s.mobilities, mobility)
	s.medium.register(self, n, mobility)
}

// Run selects nRequesters distinct nodes, has each originate one request
// for a random service at a random time in [2, MAX_REQUEST_TIME) seconds
// (per stratos.cc's Run), drives mobility ticks for totalSimulationTime,
// and returns the shared Results collector.
func (s *Simulation) Run(totalSimulationTime time.Duration) *results.Collector {
	requesters := s.pickRequesters()
	for _, idx := range requesters {
		idx := idx
		delay := time.Duration((2 + s.rng.Float64()*(s.cfg.MaxRequestTime.Seconds()-2)) * float64(time.Second))
		service := s.catalogOf(idx)
		s.scheduler.ScheduleAt(delay, func() {
			s.nodes[idx].Request(service)
		})
	}

	s.scheduleMobilityTicks()
	s.mock.Add(totalSimulationTime)
	return s.results
}

// Registry exposes the Prometheus registry backing this run's Results
// collector, for callers that want to scrape or render the raw metric
// families (e.g. the CLI's text-exposition summary).
func (s *Simulation) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Simulation) catalogOf(idx int) string {
	svc := s.nodes[idx].Catalog.RandomService()
	if svc == "" {
		return "service-0"
	}
	return svc
}

func (s *Simulation) pickRequesters() []int {
	n := s.cfg.NRequesters
	if n > len(s.nodes) {
		n = len(s.nodes)
	}
	chosen := make(map[int]bool, n)
	for len(chosen) < n {
		chosen[s.rng.Intn(len(s.nodes))] = true
	}
	out := make([]int, 0, n)
	for idx := range chosen {
		out = append(out, idx)
	}
	return out
}

func (s *Simulation) scheduleMobilityTicks() {
	var tick func()
	last := 0.0
	tick = func() {
		now := s.scheduler.Now()
		dt := now - last
		last = now
		for _, m := range s.mobilities {
			m.advance(now, dt)
		}
		s.scheduler.ScheduleAt(mobilityTick, tick)
	}
	s.scheduler.ScheduleAt(mobilityTick, tick)
}
