// Package model holds the entities shared by the simulation subsystems.
package model

import "time"

// TraitName identifies one of the eight personality traits.
type TraitName string

const (
	TraitCuriosity    TraitName = "curiosity"
	TraitEmpathy      TraitName = "empathy"
	TraitAmbition     TraitName = "ambition"
	TraitCreativity   TraitName = "creativity"
	TraitCourage      TraitName = "courage"
	TraitCharm        TraitName = "charm"
	TraitIntelligence TraitName = "intelligence"
	TraitHumor        TraitName = "humor"
)

// AllTraits lists every trait in a stable order.
var AllTraits = []TraitName{
	TraitCuriosity, TraitEmpathy, TraitAmbition, TraitCreativity,
	TraitCourage, TraitCharm, TraitIntelligence, TraitHumor,
}

const (
	MinTrait      = 1
	MaxTrait      = 10
	TraitMidpoint = 5
)

// Traits are static 1-10 personality scores.
type Traits struct {
	Curiosity    int `json:"curiosity"`
	Empathy      int `json:"empathy"`
	Ambition     int `json:"ambition"`
	Creativity   int `json:"creativity"`
	Courage      int `json:"courage"`
	Charm        int `json:"charm"`
	Intelligence int `json:"intelligence"`
	Humor        int `json:"humor"`
}

func (t *Traits) field(name TraitName) *int {
	switch name {
	case TraitCuriosity:
		return &t.Curiosity
	case TraitEmpathy:
		return &t.Empathy
	case TraitAmbition:
		return &t.Ambition
	case TraitCreativity:
		return &t.Creativity
	case TraitCourage:
		return &t.Courage
	case TraitCharm:
		return &t.Charm
	case TraitIntelligence:
		return &t.Intelligence
	case TraitHumor:
		return &t.Humor
	}
	return nil
}

// Get returns the score for a trait, or 0 for an unknown name.
func (t Traits) Get(name TraitName) int {
	if p := t.field(name); p != nil {
		return *p
	}
	return 0
}

// Set stores a trait score clamped to [MinTrait, MaxTrait].
func (t *Traits) Set(name TraitName, v int) {
	if p := t.field(name); p != nil {
		*p = clampInt(v, MinTrait, MaxTrait)
	}
}

// Shift adds delta to a trait and returns the new score.
func (t *Traits) Shift(name TraitName, delta int) int {
	t.Set(name, t.Get(name)+delta)
	return t.Get(name)
}

// Valid reports whether every trait is inside [MinTrait, MaxTrait].
func (t Traits) Valid() bool {
	for _, n := range AllTraits {
		v := t.Get(n)
		if v < MinTrait || v > MaxTrait {
			return false
		}
	}
	return true
}

// Needs are urgencies: 0 is satisfied, 10 is desperate. Energy measures fatigue.
type Needs struct {
	Hunger float64 `json:"hunger"`
	Energy float64 `json:"energy"`
	Social float64 `json:"social"`
}

const MaxNeed = 10.0

// Mood is the agent's current emotional state, both fields 0-10.
type Mood struct {
	Happiness float64 `json:"happiness"`
	Energy    float64 `json:"energy"`
}

// AgentState is the lifecycle state of an agent.
type AgentState string

const (
	StateIdle     AgentState = "idle"
	StateBusy     AgentState = "busy"
	StateSleeping AgentState = "sleeping"
)

// Agent is a simulated inhabitant.
type Agent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Traits    Traits         `json:"traits"`
	Mood      Mood           `json:"mood"`
	Location  string         `json:"location"`
	Inventory map[string]int `json:"inventory"`
	Needs     Needs          `json:"needs"`
	State     AgentState     `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	c := *a
	if a.Inventory != nil {
		c.Inventory = make(map[string]int, len(a.Inventory))
		for k, v := range a.Inventory {
			c.Inventory[k] = v
		}
	}
	return &c
}

// Awake reports whether the agent takes turns.
func (a *Agent) Awake() bool { return a.State != StateSleeping }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampNeed bounds a need to [0, MaxNeed].
func ClampNeed(v float64) float64 { return clampFloat(v, 0, MaxNeed) }
