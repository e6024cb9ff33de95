// Package ontology implements the Ontology oracle (§6): a node's local
// catalog of offered services, a random-service picker used to generate
// synthetic requests, and the best-match lookup Discovery uses to build a
// self-response. Shaped after the teacher's functional-options Peer
// construction in speaker/speaker.go (PeerOption, Policer), generalized
// here to Option / Catalog entries instead of per-peer policy.
package ontology

import (
	"math/rand"

	"github.com/blunan/Stratos/internal/wire"
)

// Catalog is the Ontology oracle. A real deployment's catalog entries come
// from configuration; the simulation harness seeds one per node from
// nServices (§6).
type Catalog struct {
	offered []wire.OfferedService
	rng     *rand.Rand
}

// Option configures a Catalog at construction, mirroring the teacher's
// PeerOption pattern (speaker/speaker.go, speaker/policy.go).
type Option func(*Catalog)

// WithOffered seeds the catalog with a fixed offered-service list.
func WithOffered(services []wire.OfferedService) Option {
	return func(c *Catalog) {
		c.offered = append(c.offered, services...)
	}
}

// WithRand overrides the catalog's source of randomness, for deterministic
// tests.
func WithRand(rng *rand.Rand) Option {
	return func(c *Catalog) { c.rng = rng }
}

// New creates a Catalog applying the given options.
func New(opts ...Option) *Catalog {
	c := &Catalog{rng: rand.New(rand.NewSource(1))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RandomService returns a random service name from the catalog's offered
// services, used to synthesize outbound requests in the simulation harness.
// Returns "" if the catalog offers nothing.
func (c *Catalog) RandomService() string {
	if len(c.offered) == 0 {
		return ""
	}
	return c.offered[c.rng.Intn(len(c.offered))].Name
}

// BestOfferedFor returns the locally offered service nearest to the
// requested one together with its semantic distance, and whether any
// offered service matched at all. "Nearest" is modelled as exact-name match
// (distance 0) when offered, else the smallest recorded semantic distance
// among all offerings — mirroring the ns-3 original's flat per-service
// distance table (definitions.h's OFFERED_SERVICE shape) rather than any
// real taxonomy traversal, which is explicitly out of scope (§1 Non-goals:
// ontology reasoning).
func (c *Catalog) BestOfferedFor(requested string) (wire.OfferedService, bool) {
	var best wire.OfferedService
	found := false
	for _, o := range c.offered {
		if o.Name == requested {
			return wire.OfferedService{Name: o.Name, SemanticDistance: 0}, true
		}
		if !found || o.SemanticDistance < best.SemanticDistance {
			best = o
			found = true
		}
	}
	return best, found
}

// Provides reports whether the catalog offers the named service exactly.
func (c *Catalog) Provides(service string) bool {
	for _, o := range c.offered {
		if o.Name == service {
			return true
		}
	}
	return false
}
