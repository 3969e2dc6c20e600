package world

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
)

// Locations are the places agents can be.
var Locations = []string{
	"town_square", "market", "library", "tavern", "park", "workshop", "docks",
}

var firstNames = []string{
	"Ada", "Bram", "Cora", "Dmitri", "Elin", "Fen", "Greta", "Hollis",
	"Iris", "Jonah", "Kaia", "Lio", "Mara", "Nils", "Oona", "Pip",
}

// ValidLocation reports whether loc is a known place.
func ValidLocation(loc string) bool {
	for _, l := range Locations {
		if l == loc {
			return true
		}
	}
	return false
}

// Spawner creates agents with random traits.
type Spawner struct {
	repo  store.Repository
	clock clock.Clock
	rng   *rand.Rand
}

// NewSpawner creates an agent spawner.
func NewSpawner(repo store.Repository, clk clock.Clock, rng *rand.Rand) *Spawner {
	return &Spawner{repo: repo, clock: clk, rng: rng}
}

// AgentSpec describes an agent to create. Zero traits are rolled.
type AgentSpec struct {
	Name     string       `json:"name"`
	Location string       `json:"location"`
	Traits   model.Traits `json:"traits"`
}

// Spawn creates and saves an agent. Must run under the world lock.
func (s *Spawner) Spawn(spec AgentSpec) (*model.Agent, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = s.name()
	}
	loc := spec.Location
	if loc == "" {
		loc = Locations[s.rng.IntN(len(Locations))]
	} else if !ValidLocation(loc) {
		return nil, simerr.Validation("unknown location %q", loc)
	}

	traits := spec.Traits
	for _, t := range model.AllTraits {
		v := traits.Get(t)
		switch {
		case v == 0:
			traits.Set(t, s.roll())
		case v < model.MinTrait || v > model.MaxTrait:
			return nil, simerr.Validation("trait %s out of range: %d", t, v)
		}
	}

	a := &model.Agent{
		Name:      name,
		Traits:    traits,
		Location:  loc,
		Inventory: map[string]int{"food": 2, "coins": 5},
		Needs:     model.Needs{Hunger: 2, Energy: 2, Social: 3},
		State:     model.StateIdle,
		CreatedAt: s.clock.Now(),
	}
	UpdateMood(a)
	if err := s.repo.SaveAgent(a); err != nil {
		return nil, err
	}
	return a, nil
}

// SpawnN creates n agents with random names, traits and locations.
func (s *Spawner) SpawnN(n int) ([]*model.Agent, error) {
	out := make([]*model.Agent, 0, n)
	for i := 0; i < n; i++ {
		a, err := s.Spawn(AgentSpec{})
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	return out, nil
}

// roll returns a trait score centered on the midpoint.
func (s *Spawner) roll() int {
	return model.MinTrait + s.rng.IntN(4) + s.rng.IntN(4) + s.rng.IntN(4)
}

func (s *Spawner) name() string {
	n := firstNames[s.rng.IntN(len(firstNames))]
	return fmt.Sprintf("%s %c.", n, 'A'+rune(s.rng.IntN(26)))
}
