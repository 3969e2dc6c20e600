// Package decision chooses and carries out agent actions.
package decision

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/world"
)

// Kind is the variant tag of an action.
type Kind string

const (
	KindIdle     Kind = "idle"
	KindEat      Kind = "eat"
	KindSleep    Kind = "sleep"
	KindTalk     Kind = "talk"
	KindHelp     Kind = "help"
	KindConfront Kind = "confront"
	KindWork     Kind = "work"
	KindExplore  Kind = "explore"
	KindStudy    Kind = "study"
	KindMove     Kind = "move"
)

// Action is what an agent does on its turn. TargetID is set for social
// kinds and Location for moves.
type Action struct {
	Kind     Kind   `json:"kind"`
	TargetID string `json:"target_id,omitempty"`
	Location string `json:"location,omitempty"`
}

func (a Action) String() string {
	switch {
	case a.TargetID != "":
		return fmt.Sprintf("%s(%s)", a.Kind, a.TargetID)
	case a.Location != "":
		return fmt.Sprintf("%s(%s)", a.Kind, a.Location)
	}
	return string(a.Kind)
}

// Social reports whether the action needs a target agent.
func (a Action) Social() bool {
	return a.Kind == KindTalk || a.Kind == KindHelp || a.Kind == KindConfront
}

// Perception is what an agent knows when deciding.
type Perception struct {
	Now           time.Time
	Nearby        []*model.Agent
	Goals         []*model.Goal // active goals, highest priority first
	Relationships map[string]*model.Relationship
	Locations     map[string]string // agent id -> location
}

// Decider picks an action. Implementations must be safe to call with a
// perception that has no nearby agents and no goals.
type Decider interface {
	Decide(ctx context.Context, agent *model.Agent, p Perception) (Action, error)
}

// RandomDecider picks uniformly among plausible actions.
type RandomDecider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDecider creates a decider over a seeded source.
func NewRandomDecider(rng *rand.Rand) *RandomDecider {
	return &RandomDecider{rng: rng}
}

var solo = []Kind{KindIdle, KindEat, KindSleep, KindWork, KindExplore, KindStudy, KindMove}

// Decide implements Decider.
func (d *RandomDecider) Decide(_ context.Context, _ *model.Agent, p Perception) (Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(p.Nearby) > 0 && d.rng.IntN(3) == 0 {
		target := p.Nearby[d.rng.IntN(len(p.Nearby))]
		kind := KindTalk
		if r := p.Relationships[target.ID]; r != nil && r.Score <= -5 && d.rng.IntN(2) == 0 {
			kind = KindConfront
		} else if d.rng.IntN(4) == 0 {
			kind = KindHelp
		}
		return Action{Kind: kind, TargetID: target.ID}, nil
	}
	kind := solo[d.rng.IntN(len(solo))]
	if kind == KindMove {
		return Action{Kind: KindMove, Location: world.Locations[d.rng.IntN(len(world.Locations))]}, nil
	}
	return Action{Kind: kind}, nil
}

// GoalDecider pursues the agent's top goal and falls back to another
// decider when the goal gives no clear action.
type GoalDecider struct {
	fallback Decider
}

// NewGoalDecider creates a goal-driven decider.
func NewGoalDecider(fallback Decider) *GoalDecider {
	return &GoalDecider{fallback: fallback}
}

// Decide implements Decider.
func (d *GoalDecider) Decide(ctx context.Context, agent *model.Agent, p Perception) (Action, error) {
	for _, g := range p.Goals {
		if a, ok := forGoal(agent, g, p); ok {
			return a, nil
		}
	}
	return d.fallback.Decide(ctx, agent, p)
}

func forGoal(agent *model.Agent, g *model.Goal, p Perception) (Action, bool) {
	switch g.Type {
	case model.GoalEat:
		return Action{Kind: KindEat}, true
	case model.GoalSleep:
		return Action{Kind: KindSleep}, true
	case model.GoalSocialize, model.GoalMakeFriends, model.GoalEntertain:
		if t := friendliest(p); t != "" {
			return Action{Kind: KindTalk, TargetID: t}, true
		}
		if agent.Location != "town_square" {
			return Action{Kind: KindMove, Location: "town_square"}, true
		}
		return Action{}, false
	case model.GoalHelpFriend, model.GoalSupportPartner, model.GoalMentor:
		return approach(agent, g.TargetID, KindHelp, p)
	case model.GoalConfront, model.GoalRevenge:
		return approach(agent, g.TargetID, KindConfront, p)
	case model.GoalReconcile, model.GoalSeekKnowledge:
		if g.TargetID == "" && g.Type == model.GoalSeekKnowledge {
			return Action{Kind: KindStudy}, true
		}
		return approach(agent, g.TargetID, KindTalk, p)
	case model.GoalAvoid:
		if nearby(p, g.TargetID) {
			return Action{Kind: KindExplore}, true
		}
		return Action{}, false
	case model.GoalInvestigate, model.GoalExplore:
		return Action{Kind: KindExplore}, true
	case model.GoalLearn:
		return Action{Kind: KindStudy}, true
	case model.GoalGainWealth, model.GoalGainPower, model.GoalCreate:
		return Action{Kind: KindWork}, true
	}
	return Action{}, false
}

// approach acts on a target that is present, or walks to where it is.
func approach(agent *model.Agent, targetID string, kind Kind, p Perception) (Action, bool) {
	if targetID == "" {
		return Action{}, false
	}
	if nearby(p, targetID) {
		return Action{Kind: kind, TargetID: targetID}, true
	}
	if loc, ok := p.Locations[targetID]; ok && loc != agent.Location {
		return Action{Kind: KindMove, Location: loc}, true
	}
	return Action{}, false
}

func nearby(p Perception, id string) bool {
	for _, a := range p.Nearby {
		if a.ID == id {
			return true
		}
	}
	return false
}

// friendliest returns the nearby agent the decider likes most, avoiding
// anyone it is hostile to.
func friendliest(p Perception) string {
	best, bestScore := "", -3
	for _, a := range p.Nearby {
		score := 0
		if r := p.Relationships[a.ID]; r != nil {
			score = r.Score
		}
		if score > bestScore {
			best, bestScore = a.ID, score
		}
	}
	return best
}
