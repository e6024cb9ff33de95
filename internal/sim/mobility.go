package sim

import (
	"math/rand"

	"github.com/blunan/Stratos/internal/position"
)

// waypointMobility implements position.Oracle with the ns-3 original's
// RandomWaypointMobilityModel (original_source/code/stratos.cc,
// CreateMobileNodes): a node picks a uniformly random destination within
// [0,areaSize]^2, walks toward it at a random speed in [minSpeed,maxSpeed],
// pauses for pauseSeconds, then repeats. advance is driven by the simulation's
// tick loop rather than a continuous integrator.
type waypointMobility struct {
	pos                position.Position
	dest               position.Position
	speed              float64
	pausedUntil        float64
	areaSize           float64
	minSpeed, maxSpeed float64
	pause              float64
	rng                *rand.Rand
}

func newWaypointMobility(rng *rand.Rand, areaSize, minSpeed, maxSpeed, pause float64) *waypointMobility {
	m := &waypointMobility{
		pos:      position.Position{X: rng.Float64() * areaSize, Y: rng.Float64() * areaSize},
		areaSize: areaSize,
		minSpeed: minSpeed,
		maxSpeed: maxSpeed,
		pause:    pause,
		rng:      rng,
	}
	m.pickDestination()
	return m
}

func (m *waypointMobility) pickDestination() {
	m.dest = position.Position{X: m.rng.Float64() * m.areaSize, Y: m.rng.Float64() * m.areaSize}
	m.speed = m.minSpeed + m.rng.Float64()*(m.maxSpeed-m.minSpeed)
}

// Position implements position.Oracle.
func (m *waypointMobility) Position() position.Position { return m.pos }

// advance moves the node by dt seconds at the current tick time now.
func (m *waypointMobility) advance(now, dt float64) {
	if now < m.pausedUntil {
		return
	}
	remaining := position.Distance(m.pos, m.dest)
	if remaining == 0 {
		m.pickDestination()
		return
	}
	travel := m.speed * dt
	if travel >= remaining {
		m.pos = m.dest
		m.pausedUntil = now + m.pause
		return
	}
	frac := travel / remaining
	m.pos = position.Position{
		X: m.pos.X + (m.dest.X-m.pos.X)*frac,
		Y: m.pos.Y + (m.dest.Y-m.pos.Y)*frac,
	}
}
